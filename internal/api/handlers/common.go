package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/TheGojiOG/tw404-manager/internal/access"
	"github.com/TheGojiOG/tw404-manager/internal/accounts"
	"github.com/TheGojiOG/tw404-manager/internal/server"
)

// Lifecycle probes and drives the managed processes
type Lifecycle interface {
	Probe(ctx context.Context) server.Status
	Start(ctx context.Context) server.Report
	Stop(ctx context.Context) server.Report
	Restart(ctx context.Context) server.Report
}

// LogSource reads process logs
type LogSource interface {
	Tail(ctx context.Context, name string, lines int) (string, error)
	Download(ctx context.Context, name string, w io.Writer) (int64, error)
	LogPath(name string) (string, error)
	CanDownload() bool
}

// AccessControl edits GM bindings and the ban list
type AccessControl interface {
	AssignGM(ctx context.Context, name, ip string) access.Result
	BanIP(ctx context.Context, ip string) access.Result
	ListBans(ctx context.Context) ([]string, error)
}

// AccountCreator runs the account creation transaction
type AccountCreator interface {
	Create(ctx context.Context, req accounts.Request) accounts.Outcome
}

// HealthProbe checks remote connectivity
type HealthProbe interface {
	Check(ctx context.Context) bool
}

// statusForKind maps a failure kind onto an HTTP status
func statusForKind(kind accounts.Kind) int {
	switch kind {
	case accounts.KindValidation:
		return http.StatusBadRequest
	case accounts.KindDuplicate:
		return http.StatusConflict
	case accounts.KindPrecondition:
		return http.StatusNotFound
	case accounts.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
