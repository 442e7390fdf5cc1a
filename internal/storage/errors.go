package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrStoreConnection marks transient failures reaching the store. They
	// are retried before being returned.
	ErrStoreConnection = errors.New("vector store connection error")

	// ErrStoreAuth marks rejected credentials. Never retried.
	ErrStoreAuth = errors.New("vector store authentication error")

	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrSessionClosed is returned by every call made after Close.
	ErrSessionClosed = errors.New("vector store session closed")
)

// UpsertError reports the records that were not written. Records before
// the failing batch are stored; FailedIDs lists exactly the rest.
type UpsertError struct {
	FailedIDs []string
	Err       error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert failed for %d records: %v", len(e.FailedIDs), e.Err)
}

func (e *UpsertError) Unwrap() error {
	return e.Err
}

// classify maps gRPC status codes onto the package's sentinel errors.
// Errors it does not recognise are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %v", ErrStoreConnection, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %v", ErrStoreAuth, err)
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrCollectionNotFound, err)
	case codes.AlreadyExists:
		return err
	}

	// Qdrant reports a missing collection on some calls as a generic error
	if strings.Contains(st.Message(), "doesn't exist") {
		return fmt.Errorf("%w: %v", ErrCollectionNotFound, err)
	}
	return err
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, ErrStoreConnection)
}
