package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrControlPlaneUnavailable means the shared users/branches database
	// could not be reached.
	ErrControlPlaneUnavailable = errors.New("control plane database unavailable")
	// ErrBranchUnreachable means a branch's point-of-sale database could not
	// be reached or did not answer within the statement timeout.
	ErrBranchUnreachable = errors.New("branch database unreachable")
	// ErrSchemaMismatch means a statement referenced a table, column or type
	// that the target database does not have.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

type Target int

const (
	TargetControlPlane Target = iota
	TargetBranch
)

func (t Target) String() string {
	if t == TargetBranch {
		return "branch"
	}
	return "control-plane"
}

func (t Target) unavailable() error {
	if t == TargetBranch {
		return ErrBranchUnreachable
	}
	return ErrControlPlaneUnavailable
}

// IsUnreachable reports whether err means the database itself could not be
// used, as opposed to a statement-level failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrBranchUnreachable) || errors.Is(err, ErrControlPlaneUnavailable)
}

func classify(target Target, err error) error {
	if err == nil {
		return nil
	}
	if IsUnreachable(err) || errors.Is(err, ErrSchemaMismatch) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "42"):
			return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57"), pgErr.Code == "53300":
			return fmt.Errorf("%w: %w", target.unavailable(), err)
		}
		return err
	}

	var scanErr pgx.ScanArgError
	if errors.As(err, &scanErr) {
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}

	if isConnectivity(err) {
		return fmt.Errorf("%w: %w", target.unavailable(), err)
	}
	return err
}

func isConnectivity(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// IsDuplicateObject reports the "already exists" outcomes that concurrent
// schema-ensure runs can produce.
func IsDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42P07", "42701", "42710", "42P06", "23505":
		return true
	}
	return false
}
