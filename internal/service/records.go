package service

import (
	"context"

	"sismed/internal/domain"
	"sismed/internal/repository"

	"github.com/rs/zerolog"
)

// RecordsService provides the clinical record use cases: patients, the
// medicine catalog, posologies and prescriptions
type RecordsService struct {
	repo     repository.Repository
	eventBus *EventBus
	log      zerolog.Logger
}

// NewRecordsService creates a new records service
func NewRecordsService(repo repository.Repository, eventBus *EventBus, log zerolog.Logger) *RecordsService {
	return &RecordsService{
		repo:     repo,
		eventBus: eventBus,
		log:      log.With().Str("component", "records").Logger(),
	}
}

// validate rejects incomplete input before it reaches the store
func validate(op string, v interface{ Validate() error }) error {
	if err := v.Validate(); err != nil {
		return domain.E(domain.KindInvalid, op, err)
	}
	return nil
}

// failed logs err at a level matching its kind and returns it unchanged
func (s *RecordsService) failed(op string, err error) error {
	switch domain.KindOf(err) {
	case domain.KindInvalid, domain.KindConstraint, domain.KindNotFound:
		s.log.Debug().Err(err).Str("op", op).Msg("request rejected")
	default:
		s.log.Warn().Err(err).Str("op", op).Msg("operation failed")
	}
	return err
}

func (s *RecordsService) created(op string, typ EventType, id int64, err error) (int64, error) {
	if err != nil {
		return 0, s.failed(op, err)
	}
	s.eventBus.Publish(Event{Type: typ, Payload: map[string]int64{"id": id}})
	return id, nil
}

// changed publishes typ for a successful update or delete. Zero affected
// rows is still a success.
func (s *RecordsService) changed(op string, typ EventType, id, affected int64, err error) (int64, error) {
	if err != nil {
		return 0, s.failed(op, err)
	}
	if affected == 0 {
		s.log.Debug().Str("op", op).Int64("id", id).Msg("no rows affected")
	}
	s.eventBus.Publish(Event{Type: typ, Payload: map[string]int64{"id": id, "affected": affected}})
	return affected, nil
}

// ============================================================================
// Patients
// ============================================================================

// ListPatients returns all patients ordered by name
func (s *RecordsService) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	patients, err := s.repo.ListPatients(ctx)
	if err != nil {
		return nil, s.failed("list patients", err)
	}
	return patients, nil
}

// CreatePatient registers a patient
func (s *RecordsService) CreatePatient(ctx context.Context, p domain.Patient) (int64, error) {
	const op = "create patient"
	if err := validate(op, &p); err != nil {
		return 0, s.failed(op, err)
	}
	id, err := s.repo.CreatePatient(ctx, &p)
	return s.created(op, EventPatientCreated, id, err)
}

// UpdatePatient overwrites a patient
func (s *RecordsService) UpdatePatient(ctx context.Context, id int64, p domain.Patient) (int64, error) {
	const op = "update patient"
	if err := validate(op, &p); err != nil {
		return 0, s.failed(op, err)
	}
	n, err := s.repo.UpdatePatient(ctx, id, &p)
	return s.changed(op, EventPatientUpdated, id, n, err)
}

// DeletePatient removes a patient and, by cascade, its prescriptions
func (s *RecordsService) DeletePatient(ctx context.Context, id int64) (int64, error) {
	const op = "delete patient"
	n, err := s.repo.DeletePatient(ctx, id)
	return s.changed(op, EventPatientDeleted, id, n, err)
}

// ============================================================================
// Medicines
// ============================================================================

// ListMedicines returns the medicine catalog
func (s *RecordsService) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	medicines, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return nil, s.failed("list medicines", err)
	}
	return medicines, nil
}

// CreateMedicine adds a catalog entry
func (s *RecordsService) CreateMedicine(ctx context.Context, m domain.Medicine) (int64, error) {
	const op = "create medicine"
	if err := validate(op, &m); err != nil {
		return 0, s.failed(op, err)
	}
	id, err := s.repo.CreateMedicine(ctx, &m)
	return s.created(op, EventMedicineCreated, id, err)
}

// UpdateMedicine overwrites a catalog entry
func (s *RecordsService) UpdateMedicine(ctx context.Context, id int64, m domain.Medicine) (int64, error) {
	const op = "update medicine"
	if err := validate(op, &m); err != nil {
		return 0, s.failed(op, err)
	}
	n, err := s.repo.UpdateMedicine(ctx, id, &m)
	return s.changed(op, EventMedicineUpdated, id, n, err)
}

// DeleteMedicine removes a catalog entry not referenced by any prescription
func (s *RecordsService) DeleteMedicine(ctx context.Context, id int64) (int64, error) {
	const op = "delete medicine"
	n, err := s.repo.DeleteMedicine(ctx, id)
	return s.changed(op, EventMedicineDeleted, id, n, err)
}

// ============================================================================
// Posologies
// ============================================================================

// ListPosologies returns the standard posologies
func (s *RecordsService) ListPosologies(ctx context.Context) ([]domain.Posology, error) {
	posologies, err := s.repo.ListPosologies(ctx)
	if err != nil {
		return nil, s.failed("list posologies", err)
	}
	return posologies, nil
}

// CreatePosology adds a standard posology
func (s *RecordsService) CreatePosology(ctx context.Context, p domain.Posology) (int64, error) {
	const op = "create posology"
	if err := validate(op, &p); err != nil {
		return 0, s.failed(op, err)
	}
	id, err := s.repo.CreatePosology(ctx, &p)
	return s.created(op, EventPosologyCreated, id, err)
}

// UpdatePosology replaces a posology text
func (s *RecordsService) UpdatePosology(ctx context.Context, id int64, p domain.Posology) (int64, error) {
	const op = "update posology"
	if err := validate(op, &p); err != nil {
		return 0, s.failed(op, err)
	}
	n, err := s.repo.UpdatePosology(ctx, id, &p)
	return s.changed(op, EventPosologyUpdated, id, n, err)
}

// DeletePosology removes a posology
func (s *RecordsService) DeletePosology(ctx context.Context, id int64) (int64, error) {
	const op = "delete posology"
	n, err := s.repo.DeletePosology(ctx, id)
	return s.changed(op, EventPosologyDeleted, id, n, err)
}

// ============================================================================
// Prescriptions
// ============================================================================

// ListPrescriptionsByPatient returns a patient's prescriptions, newest first
func (s *RecordsService) ListPrescriptionsByPatient(ctx context.Context, patientID int64) ([]domain.Prescription, error) {
	prescriptions, err := s.repo.ListPrescriptionsByPatient(ctx, patientID)
	if err != nil {
		return nil, s.failed("list prescriptions", err)
	}
	return prescriptions, nil
}

// CreatePrescription issues a prescription header
func (s *RecordsService) CreatePrescription(ctx context.Context, p domain.Prescription) (int64, error) {
	const op = "create prescription"
	if err := validate(op, &p); err != nil {
		return 0, s.failed(op, err)
	}
	id, err := s.repo.CreatePrescription(ctx, &p)
	return s.created(op, EventPrescriptionCreated, id, err)
}

// AddMedicineToPrescription appends a medicine line to a prescription
func (s *RecordsService) AddMedicineToPrescription(ctx context.Context, pm domain.PrescriptionMedicine) (int64, error) {
	const op = "add medicine to prescription"
	if err := validate(op, &pm); err != nil {
		return 0, s.failed(op, err)
	}
	id, err := s.repo.AddMedicineToPrescription(ctx, &pm)
	return s.created(op, EventPrescriptionMedicineAdded, id, err)
}

// GetPrescriptionMedicines returns the detailed lines of a prescription
func (s *RecordsService) GetPrescriptionMedicines(ctx context.Context, prescriptionID int64) ([]domain.PrescriptionMedicineDetail, error) {
	items, err := s.repo.GetPrescriptionMedicines(ctx, prescriptionID)
	if err != nil {
		return nil, s.failed("get prescription medicines", err)
	}
	return items, nil
}

// GetPrescriptionWithMedicines returns a prescription with its lines
func (s *RecordsService) GetPrescriptionWithMedicines(ctx context.Context, prescriptionID int64) (*domain.PrescriptionWithMedicines, error) {
	p, err := s.repo.GetPrescriptionWithMedicines(ctx, prescriptionID)
	if err != nil {
		return nil, s.failed("get prescription", err)
	}
	return p, nil
}

// Counts returns the number of stored rows per table
func (s *RecordsService) Counts(ctx context.Context) (domain.Counts, error) {
	c, err := s.repo.Counts(ctx)
	if err != nil {
		return domain.Counts{}, s.failed("count rows", err)
	}
	return c, nil
}
