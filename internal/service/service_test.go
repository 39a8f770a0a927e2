package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sismed/internal/backup"
	"sismed/internal/blob"
	blobfs "sismed/internal/blob/fs"
	"sismed/internal/domain"
	"sismed/internal/repository/sqlite"
)

// ============================================================================
// Test Helpers
// ============================================================================

func newTestRepo(t *testing.T, path string) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newRecords(t *testing.T) (*RecordsService, chan Event) {
	t.Helper()
	bus := NewEventBus()
	events := make(chan Event, 16)
	bus.Subscribe(events)
	return NewRecordsService(newTestRepo(t, sqlite.MemoryPath), bus, zerolog.Nop()), events
}

func expectEvent(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	select {
	case ev := <-events:
		if ev.Type != want {
			t.Fatalf("expected event %s, got %s", want, ev.Type)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("expected event %s, got none", want)
	}
	return Event{}
}

func expectNoEvent(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.Type)
	default:
	}
}

// ============================================================================
// EventBus Tests
// ============================================================================

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	a := make(chan Event, 1)
	b := make(chan Event) // unbuffered, never read: must not block Publish
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Publish(Event{Type: EventPatientCreated})
	expectEvent(t, a, EventPatientCreated)

	bus.Unsubscribe(a)
	bus.Publish(Event{Type: EventPatientDeleted})
	expectNoEvent(t, a)

	var nilBus *EventBus
	nilBus.Publish(Event{Type: EventPatientCreated})
}

// ============================================================================
// RecordsService Tests
// ============================================================================

func TestRecordsServicePatients(t *testing.T) {
	ctx := context.Background()
	svc, events := newRecords(t)

	t.Run("invalid input rejected without event", func(t *testing.T) {
		_, err := svc.CreatePatient(ctx, domain.Patient{Name: "ana"})
		if !domain.IsKind(err, domain.KindInvalid) {
			t.Fatalf("expected invalid input error, got %v", err)
		}
		expectNoEvent(t, events)
	})

	t.Run("create publishes", func(t *testing.T) {
		id, err := svc.CreatePatient(ctx, domain.Patient{Name: "ana silva", NationalID: "1", BirthDate: "1980-05-01"})
		if err != nil {
			t.Fatalf("CreatePatient: %v", err)
		}
		if id != 1 {
			t.Errorf("expected id 1, got %d", id)
		}
		ev := expectEvent(t, events, EventPatientCreated)
		if ev.Payload.(map[string]int64)["id"] != 1 {
			t.Errorf("unexpected payload %v", ev.Payload)
		}
	})

	t.Run("constraint surfaces", func(t *testing.T) {
		_, err := svc.CreatePatient(ctx, domain.Patient{Name: "outra", NationalID: "1", BirthDate: "1990-01-01"})
		if !domain.IsKind(err, domain.KindConstraint) {
			t.Fatalf("expected constraint error, got %v", err)
		}
		expectNoEvent(t, events)
	})

	t.Run("update of missing id still succeeds", func(t *testing.T) {
		n, err := svc.UpdatePatient(ctx, 404, domain.Patient{Name: "x", NationalID: "y", BirthDate: "z"})
		if err != nil || n != 0 {
			t.Fatalf("expected (0, nil), got (%d, %v)", n, err)
		}
		expectEvent(t, events, EventPatientUpdated)
	})

	t.Run("delete", func(t *testing.T) {
		n, err := svc.DeletePatient(ctx, 1)
		if err != nil || n != 1 {
			t.Fatalf("expected (1, nil), got (%d, %v)", n, err)
		}
		expectEvent(t, events, EventPatientDeleted)
	})
}

func TestRecordsServicePrescription(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRecords(t)

	patientID, err := svc.CreatePatient(ctx, domain.Patient{Name: "ana silva", NationalID: "1", BirthDate: "1980-05-01"})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	if _, err := svc.CreatePrescription(ctx, domain.Prescription{PatientID: patientID}); !domain.IsKind(err, domain.KindInvalid) {
		t.Fatalf("expected invalid input for missing date, got %v", err)
	}

	prescriptionID, err := svc.CreatePrescription(ctx, domain.Prescription{PatientID: patientID, Date: "2024-03-01"})
	if err != nil {
		t.Fatalf("CreatePrescription: %v", err)
	}

	medicines, err := svc.ListMedicines(ctx)
	if err != nil {
		t.Fatalf("ListMedicines: %v", err)
	}
	var diazepam domain.Medicine
	for _, m := range medicines {
		if m.Name == "DIAZEPAM" && m.Dosage == "5MG" {
			diazepam = m
		}
	}
	if diazepam.ID == nil {
		t.Fatal("seeded DIAZEPAM 5MG not found")
	}

	if _, err := svc.AddMedicineToPrescription(ctx, domain.PrescriptionMedicine{
		PrescriptionID: prescriptionID, MedicineID: *diazepam.ID, Instructions: "1 ao dia",
	}); err != nil {
		t.Fatalf("AddMedicineToPrescription: %v", err)
	}

	p, err := svc.GetPrescriptionWithMedicines(ctx, prescriptionID)
	if err != nil {
		t.Fatalf("GetPrescriptionWithMedicines: %v", err)
	}
	if len(p.Medicines) != 1 || p.Medicines[0].Instructions != "1 AO DIA" || p.Medicines[0].Controlled != 1 {
		t.Errorf("unexpected detail %+v", p)
	}

	if _, err := svc.GetPrescriptionWithMedicines(ctx, 999); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

// ============================================================================
// DocumentService Tests
// ============================================================================

func TestSavePDF(t *testing.T) {
	ctx := context.Background()
	svc := NewDocumentService(zerolog.Nop())
	data := []byte("%PDF-1.4 test")

	t.Run("cancelled", func(t *testing.T) {
		_, err := svc.SavePDF(ctx, data, "x.pdf", "")
		if !domain.IsKind(err, domain.KindCancelled) {
			t.Fatalf("expected cancelled, got %v", err)
		}
	})

	t.Run("file path", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "receita.pdf")
		got, err := svc.SavePDF(ctx, data, "ignored.pdf", dest)
		if err != nil {
			t.Fatalf("SavePDF: %v", err)
		}
		if got != dest {
			t.Errorf("got %s, want %s", got, dest)
		}
		written, _ := os.ReadFile(dest)
		if !bytes.Equal(written, data) {
			t.Error("written content mismatch")
		}
	})

	t.Run("directory gets filename", func(t *testing.T) {
		dir := t.TempDir()
		got, err := svc.SavePDF(ctx, data, "Receita_ANA_2024-03-01.pdf", dir)
		if err != nil {
			t.Fatalf("SavePDF: %v", err)
		}
		if got != filepath.Join(dir, "Receita_ANA_2024-03-01.pdf") {
			t.Errorf("unexpected path %s", got)
		}
	})

	t.Run("extension enforced", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "receita")
		got, err := svc.SavePDF(ctx, data, "", dest)
		if err != nil {
			t.Fatalf("SavePDF: %v", err)
		}
		if !strings.HasSuffix(got, "receita.pdf") {
			t.Errorf("expected .pdf suffix, got %s", got)
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "no", "such", "dir", "r.pdf")
		_, err := svc.SavePDF(ctx, data, "", dest)
		if !domain.IsKind(err, domain.KindIOFailure) {
			t.Fatalf("expected i/o failure, got %v", err)
		}
	})
}

func TestSuggestedPDFName(t *testing.T) {
	tests := []struct {
		name, date, want string
	}{
		{"ana silva", "2024-03-01", "Receita_ANA_SILVA_2024-03-01.pdf"},
		{"  JOÃO   da  Costa ", "2024-12-31", "Receita_JOÃO_DA_COSTA_2024-12-31.pdf"},
		{"", "2024-01-01", "Receita_PACIENTE_2024-01-01.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := SuggestedPDFName(tt.name, tt.date); got != tt.want {
				t.Errorf("SuggestedPDFName(%q, %q) = %q, want %q", tt.name, tt.date, got, tt.want)
			}
		})
	}
}

// ============================================================================
// BackupService Tests
// ============================================================================

func newBackupFixture(t *testing.T, passphrase string) (*BackupService, *RecordsService, chan Event) {
	t.Helper()
	repo := newTestRepo(t, filepath.Join(t.TempDir(), "sismed.db"))
	local, err := blobfs.New("")
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	bus := NewEventBus()
	events := make(chan Event, 16)
	bus.Subscribe(events)

	backups := NewBackupService(repo, BackupConfig{Local: local, Sealer: backup.NewSealer(passphrase)}, bus, zerolog.Nop())
	records := NewRecordsService(repo, nil, zerolog.Nop())
	return backups, records, events
}

func TestBackupRestore(t *testing.T) {
	for _, passphrase := range []string{"", "segredo"} {
		t.Run("passphrase="+passphrase, func(t *testing.T) {
			ctx := context.Background()
			backups, records, events := newBackupFixture(t, passphrase)

			if _, err := records.CreatePatient(ctx, domain.Patient{Name: "ana", NationalID: "1", BirthDate: "d"}); err != nil {
				t.Fatalf("CreatePatient: %v", err)
			}

			dir := t.TempDir()
			location, err := backups.Backup(ctx, dir)
			if err != nil {
				t.Fatalf("Backup: %v", err)
			}
			if location != filepath.Join(dir, DefaultBackupName) {
				t.Errorf("unexpected location %s", location)
			}

			raw, _ := os.ReadFile(location)
			if backup.IsSealed(raw) != (passphrase != "") {
				t.Errorf("sealed=%v with passphrase %q", backup.IsSealed(raw), passphrase)
			}

			if _, err := records.CreatePatient(ctx, domain.Patient{Name: "bruno", NationalID: "2", BirthDate: "d"}); err != nil {
				t.Fatalf("CreatePatient: %v", err)
			}

			msg, err := backups.Restore(ctx, location)
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			if msg != RestoredMessage {
				t.Errorf("unexpected message %q", msg)
			}
			expectEvent(t, events, EventStoreRestored)

			patients, err := records.ListPatients(ctx)
			if err != nil {
				t.Fatalf("ListPatients: %v", err)
			}
			if len(patients) != 1 || patients[0].Name != "ANA" {
				t.Errorf("expected only ANA after restore, got %+v", patients)
			}
		})
	}
}

func TestBackupRestoreFailures(t *testing.T) {
	ctx := context.Background()
	backups, records, _ := newBackupFixture(t, "")

	t.Run("cancelled", func(t *testing.T) {
		if _, err := backups.Backup(ctx, ""); !domain.IsKind(err, domain.KindCancelled) {
			t.Errorf("expected cancelled backup, got %v", err)
		}
		if _, err := backups.Restore(ctx, ""); !domain.IsKind(err, domain.KindCancelled) {
			t.Errorf("expected cancelled restore, got %v", err)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := backups.Restore(ctx, filepath.Join(t.TempDir(), "missing.db"))
		if !domain.IsKind(err, domain.KindIOFailure) {
			t.Errorf("expected i/o failure, got %v", err)
		}
	})

	t.Run("not a database", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "notes.txt")
		if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := backups.Restore(ctx, src)
		if !domain.IsKind(err, domain.KindIOFailure) {
			t.Errorf("expected i/o failure, got %v", err)
		}
		// store untouched
		if _, err := records.ListPatients(ctx); err != nil {
			t.Errorf("store unusable after rejected restore: %v", err)
		}
	})

	t.Run("sealed backup without passphrase", func(t *testing.T) {
		sealed, err := backup.NewSealer("pw").Seal([]byte("SQLite format 3\x00"))
		if err != nil {
			t.Fatal(err)
		}
		src := filepath.Join(t.TempDir(), "sealed.db")
		if err := os.WriteFile(src, sealed, 0o644); err != nil {
			t.Fatal(err)
		}
		_, err = backups.Restore(ctx, src)
		if !domain.IsKind(err, domain.KindIOFailure) {
			t.Errorf("expected i/o failure, got %v", err)
		}
	})

	t.Run("s3 not configured", func(t *testing.T) {
		_, err := backups.Backup(ctx, "s3://bucket/key.db")
		if !domain.IsKind(err, domain.KindIOFailure) {
			t.Errorf("expected i/o failure, got %v", err)
		}
	})
}

// s3Fake is an in-memory blob.Store standing in for a bucket
type s3Fake struct{ objects map[string][]byte }

func (f *s3Fake) Put(_ context.Context, key string, r io.Reader) (blob.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.Info{}, err
	}
	f.objects[key] = data
	return blob.Info{Key: key, Size: int64(len(data))}, nil
}

func (f *s3Fake) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *s3Fake) Driver() blob.Driver { return blob.DriverS3 }

func TestBackupToS3Location(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, filepath.Join(t.TempDir(), "sismed.db"))

	stores := map[string]*s3Fake{}
	opener := func(_ context.Context, bucket string) (blob.Store, error) {
		if stores[bucket] == nil {
			stores[bucket] = &s3Fake{objects: map[string][]byte{}}
		}
		return stores[bucket], nil
	}
	svc := NewBackupService(repo, BackupConfig{OpenS3: opener}, nil, zerolog.Nop())

	location, err := svc.Backup(ctx, "s3://clinic/nightly/sismed.db")
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if location != "s3://clinic/nightly/sismed.db" {
		t.Errorf("unexpected location %s", location)
	}
	if !backup.IsDatabase(stores["clinic"].objects["nightly/sismed.db"]) {
		t.Error("expected a database snapshot in the bucket")
	}

	if _, err := svc.Restore(ctx, location); err != nil {
		t.Fatalf("Restore: %v", err)
	}
}

// ============================================================================
// CatalogService Tests
// ============================================================================

func TestCatalogExportImport(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, sqlite.MemoryPath)
	bus := NewEventBus()
	events := make(chan Event, 4)
	bus.Subscribe(events)
	svc := NewCatalogService(repo, bus, zerolog.Nop())

	var out bytes.Buffer
	if err := svc.Export(ctx, "yaml", &out); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(out.String(), "DIAZEPAM") {
		t.Error("expected seeded medicines in export")
	}

	result, err := svc.Import(ctx, "json", strings.NewReader(`{"medicines":[{"name":"lamotrigina","dosage":"100mg","form":"comprimido","controlled":0}],"posologies":[]}`))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.MedicinesInserted != 1 {
		t.Errorf("expected one medicine inserted, got %+v", result)
	}
	expectEvent(t, events, EventCatalogImported)

	if _, err := svc.Import(ctx, "csv", strings.NewReader("")); !domain.IsKind(err, domain.KindInvalid) {
		t.Errorf("expected invalid format error, got %v", err)
	}
	if _, err := svc.Import(ctx, "json", strings.NewReader(`{"medicines":[{"name":""}]}`)); !domain.IsKind(err, domain.KindInvalid) {
		t.Errorf("expected invalid medicine error, got %v", err)
	}
}
