// Package facade exposes the application as named commands taking a JSON
// argument object, the way the desktop front end invokes them. Results are
// plain values; failures collapse to a human-readable message at this
// boundary.
package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"sismed/internal/domain"
	"sismed/internal/metrics"
	"sismed/internal/service"
)

// Handler runs one command
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Facade dispatches named commands to the services
type Facade struct {
	records   *service.RecordsService
	documents *service.DocumentService
	backups   *service.BackupService
	catalog   *service.CatalogService
	metrics   *metrics.Metrics
	commands  map[string]Handler
}

// Services bundles the services behind the facade
type Services struct {
	Records   *service.RecordsService
	Documents *service.DocumentService
	Backups   *service.BackupService
	Catalog   *service.CatalogService
}

// New creates a facade. m may be nil.
func New(s Services, m *metrics.Metrics) *Facade {
	f := &Facade{
		records:   s.Records,
		documents: s.Documents,
		backups:   s.Backups,
		catalog:   s.Catalog,
		metrics:   m,
	}
	f.commands = f.commandTable()
	return f
}

// Invoke runs command name with its JSON argument object. Empty args are
// treated as {}.
func (f *Facade) Invoke(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	start := time.Now()
	defer func() { f.metrics.ObserveCommand(name, err, time.Since(start)) }()

	h, ok := f.commands[name]
	if !ok {
		return nil, domain.Errorf(domain.KindInvalid, "invoke", "unknown command %q", name)
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	return h(ctx, args)
}

// Commands returns the sorted command names
func (f *Facade) Commands() []string {
	names := make([]string, 0, len(f.commands))
	for name := range f.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Message collapses err to the text shown to the user
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// decode unmarshals args into dst, reporting bad input as KindInvalid
func decode(command string, args json.RawMessage, dst any) error {
	if err := json.Unmarshal(args, dst); err != nil {
		return domain.E(domain.KindInvalid, command, fmt.Errorf("bad arguments: %w", err))
	}
	return nil
}

// missing reports an absent required argument
func missing(command, arg string) error {
	return domain.Errorf(domain.KindInvalid, command, "missing argument %q", arg)
}
