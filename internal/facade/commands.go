package facade

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"sismed/internal/domain"
)

type idArgs struct {
	ID *int64 `json:"id"`
}

type patientArgs struct {
	ID      *int64          `json:"id"`
	Patient *domain.Patient `json:"patient"`
}

type medicineArgs struct {
	ID       *int64           `json:"id"`
	Medicine *domain.Medicine `json:"medicine"`
}

type posologyArgs struct {
	ID       *int64           `json:"id"`
	Posology *domain.Posology `json:"posology"`
}

type prescriptionArgs struct {
	PatientID      *int64                       `json:"patient_id"`
	PrescriptionID *int64                       `json:"prescription_id"`
	Prescription   *domain.Prescription         `json:"prescription"`
	Line           *domain.PrescriptionMedicine `json:"prescription_medicine"`
}

type pathArgs struct {
	Path string `json:"path"`
}

type savePDFArgs struct {
	Data     pdfBytes `json:"data"`
	Filename string   `json:"filename"`
	Path     string   `json:"path"`
}

type catalogArgs struct {
	Format string `json:"format"`
	Data   string `json:"data"`
}

// pdfBytes accepts either a JSON array of byte values or a base64 string
type pdfBytes []byte

func (b *pdfBytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var values []int
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		out := make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return fmt.Errorf("byte %d out of range: %d", i, v)
			}
			out[i] = byte(v)
		}
		*b = out
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	*b = out
	return nil
}

func (f *Facade) commandTable() map[string]Handler {
	return map[string]Handler{
		"get_patients":   f.getPatients,
		"create_patient": f.createPatient,
		"update_patient": f.updatePatient,
		"delete_patient": f.deletePatient,

		"get_medicines":   f.getMedicines,
		"create_medicine": f.createMedicine,
		"update_medicine": f.updateMedicine,
		"delete_medicine": f.deleteMedicine,

		"get_posologies":  f.getPosologies,
		"create_posology": f.createPosology,
		"update_posology": f.updatePosology,
		"delete_posology": f.deletePosology,

		"get_prescriptions_by_patient":    f.getPrescriptionsByPatient,
		"create_prescription":             f.createPrescription,
		"add_medicine_to_prescription":    f.addMedicineToPrescription,
		"get_prescription_medicines":      f.getPrescriptionMedicines,
		"get_prescription_with_medicines": f.getPrescriptionWithMedicines,

		"save_pdf":         f.savePDF,
		"backup_database":  f.backupDatabase,
		"restore_database": f.restoreDatabase,

		"export_catalog": f.exportCatalog,
		"import_catalog": f.importCatalog,
	}
}

// ============================================================================
// Patients
// ============================================================================

func (f *Facade) getPatients(ctx context.Context, _ json.RawMessage) (any, error) {
	return f.records.ListPatients(ctx)
}

func (f *Facade) createPatient(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "create_patient"
	var args patientArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.Patient == nil {
		return nil, missing(cmd, "patient")
	}
	return f.records.CreatePatient(ctx, *args.Patient)
}

func (f *Facade) updatePatient(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "update_patient"
	var args patientArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.ID == nil {
		return nil, missing(cmd, "id")
	}
	if args.Patient == nil {
		return nil, missing(cmd, "patient")
	}
	_, err := f.records.UpdatePatient(ctx, *args.ID, *args.Patient)
	return nil, err
}

func (f *Facade) deletePatient(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "delete_patient"
	id, err := requireID(cmd, raw)
	if err != nil {
		return nil, err
	}
	_, err = f.records.DeletePatient(ctx, id)
	return nil, err
}

// ============================================================================
// Medicines
// ============================================================================

func (f *Facade) getMedicines(ctx context.Context, _ json.RawMessage) (any, error) {
	return f.records.ListMedicines(ctx)
}

func (f *Facade) createMedicine(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "create_medicine"
	var args medicineArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.Medicine == nil {
		return nil, missing(cmd, "medicine")
	}
	return f.records.CreateMedicine(ctx, *args.Medicine)
}

func (f *Facade) updateMedicine(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "update_medicine"
	var args medicineArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.ID == nil {
		return nil, missing(cmd, "id")
	}
	if args.Medicine == nil {
		return nil, missing(cmd, "medicine")
	}
	_, err := f.records.UpdateMedicine(ctx, *args.ID, *args.Medicine)
	return nil, err
}

func (f *Facade) deleteMedicine(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "delete_medicine"
	id, err := requireID(cmd, raw)
	if err != nil {
		return nil, err
	}
	_, err = f.records.DeleteMedicine(ctx, id)
	return nil, err
}

// ============================================================================
// Posologies
// ============================================================================

func (f *Facade) getPosologies(ctx context.Context, _ json.RawMessage) (any, error) {
	return f.records.ListPosologies(ctx)
}

func (f *Facade) createPosology(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "create_posology"
	var args posologyArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.Posology == nil {
		return nil, missing(cmd, "posology")
	}
	return f.records.CreatePosology(ctx, *args.Posology)
}

func (f *Facade) updatePosology(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "update_posology"
	var args posologyArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.ID == nil {
		return nil, missing(cmd, "id")
	}
	if args.Posology == nil {
		return nil, missing(cmd, "posology")
	}
	_, err := f.records.UpdatePosology(ctx, *args.ID, *args.Posology)
	return nil, err
}

func (f *Facade) deletePosology(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "delete_posology"
	id, err := requireID(cmd, raw)
	if err != nil {
		return nil, err
	}
	_, err = f.records.DeletePosology(ctx, id)
	return nil, err
}

// ============================================================================
// Prescriptions
// ============================================================================

func (f *Facade) getPrescriptionsByPatient(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "get_prescriptions_by_patient"
	var args prescriptionArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.PatientID == nil {
		return nil, missing(cmd, "patient_id")
	}
	return f.records.ListPrescriptionsByPatient(ctx, *args.PatientID)
}

func (f *Facade) createPrescription(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "create_prescription"
	var args prescriptionArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.Prescription == nil {
		return nil, missing(cmd, "prescription")
	}
	return f.records.CreatePrescription(ctx, *args.Prescription)
}

func (f *Facade) addMedicineToPrescription(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "add_medicine_to_prescription"
	var args prescriptionArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.Line == nil {
		return nil, missing(cmd, "prescription_medicine")
	}
	return f.records.AddMedicineToPrescription(ctx, *args.Line)
}

func (f *Facade) getPrescriptionMedicines(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "get_prescription_medicines"
	var args prescriptionArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.PrescriptionID == nil {
		return nil, missing(cmd, "prescription_id")
	}
	return f.records.GetPrescriptionMedicines(ctx, *args.PrescriptionID)
}

func (f *Facade) getPrescriptionWithMedicines(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "get_prescription_with_medicines"
	var args prescriptionArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	if args.PrescriptionID == nil {
		return nil, missing(cmd, "prescription_id")
	}
	return f.records.GetPrescriptionWithMedicines(ctx, *args.PrescriptionID)
}

// ============================================================================
// Files
// ============================================================================

func (f *Facade) savePDF(ctx context.Context, raw json.RawMessage) (any, error) {
	const cmd = "save_pdf"
	var args savePDFArgs
	if err := decode(cmd, raw, &args); err != nil {
		return nil, err
	}
	return f.documents.SavePDF(ctx, args.Data, args.Filename, args.Path)
}

func (f *Facade) backupDatabase(ctx context.Context, raw json.RawMessage) (any, error) {
	var args pathArgs
	if err := decode("backup_database", raw, &args); err != nil {
		return nil, err
	}
	return f.backups.Backup(ctx, args.Path)
}

func (f *Facade) restoreDatabase(ctx context.Context, raw json.RawMessage) (any, error) {
	var args pathArgs
	if err := decode("restore_database", raw, &args); err != nil {
		return nil, err
	}
	return f.backups.Restore(ctx, args.Path)
}

// ============================================================================
// Catalog
// ============================================================================

func (f *Facade) exportCatalog(ctx context.Context, raw json.RawMessage) (any, error) {
	var args catalogArgs
	if err := decode("export_catalog", raw, &args); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.catalog.Export(ctx, args.Format, &buf); err != nil {
		return nil, err
	}
	return buf.String(), nil
}

func (f *Facade) importCatalog(ctx context.Context, raw json.RawMessage) (any, error) {
	var args catalogArgs
	if err := decode("import_catalog", raw, &args); err != nil {
		return nil, err
	}
	return f.catalog.Import(ctx, args.Format, strings.NewReader(args.Data))
}

func requireID(cmd string, raw json.RawMessage) (int64, error) {
	var args idArgs
	if err := decode(cmd, raw, &args); err != nil {
		return 0, err
	}
	if args.ID == nil {
		return 0, missing(cmd, "id")
	}
	return *args.ID, nil
}
