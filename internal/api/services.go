package api

import (
	"github.com/shirosync/shirosync-server/internal/mapping"
	"github.com/shirosync/shirosync-server/internal/matcher"
	"github.com/shirosync/shirosync-server/internal/progress"
	"github.com/shirosync/shirosync-server/internal/search"
	"github.com/shirosync/shirosync-server/internal/sources/listsource"
	"github.com/shirosync/shirosync-server/internal/store"
	"github.com/shirosync/shirosync-server/internal/syncer"
	"github.com/shirosync/shirosync-server/internal/validation"
)

// Services groups the engine components used by the API server.
type Services struct {
	Orchestrator *syncer.Orchestrator
	Runner       *syncer.Runner
	Progress     *progress.Tracker

	Importer *mapping.Importer
	Dataset  mapping.DatasetFetcher // nil disables POST /mappings/import
	// DatasetID names the import status row when the request does not.
	DatasetID string

	Mappings     store.MappingStore
	Records      store.RecordStore
	ImportStatus store.ImportStatusStore

	// Tokens is asked for the user's list token before a list sync starts.
	// Nil skips the check.
	Tokens listsource.TokenProvider

	Matcher *matcher.Matcher
	Search  *search.TitleIndex // optional, reported by the health check

	Validator *validation.Validator
}
