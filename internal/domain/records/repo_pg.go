package records

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/barangay172/portal/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const from = `medical_records m
	JOIN users u ON u.id = m.user_id
	LEFT JOIN users cb ON cb.id = m.created_by`

const cols = `m.id, m.user_id, u.full_name, m.appointment_id, m.record_date,
	COALESCE(m.symptoms, ''), COALESCE(m.diagnosis, ''), COALESCE(m.treatment, ''),
	COALESCE(m.prescription, ''), COALESCE(m.doctor_name, ''), COALESCE(m.notes, ''),
	m.created_by, COALESCE(cb.full_name, ''), m.created_at, m.updated_at`

func scanRecord(row pgx.Row) (*MedicalRecord, error) {
	var m MedicalRecord
	err := row.Scan(&m.ID, &m.UserID, &m.PatientName, &m.AppointmentID, &m.RecordDate,
		&m.Symptoms, &m.Diagnosis, &m.Treatment,
		&m.Prescription, &m.DoctorName, &m.Notes,
		&m.CreatedBy, &m.CreatedByName, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *repoPG) Create(ctx context.Context, m *MedicalRecord) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_records (id, user_id, appointment_id, record_date, symptoms, diagnosis,
			treatment, prescription, doctor_name, notes, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			NULLIF($9, ''), NULLIF($10, ''), $11)
		RETURNING created_at, updated_at`,
		m.ID, m.UserID, m.AppointmentID, m.RecordDate, m.Symptoms, m.Diagnosis,
		m.Treatment, m.Prescription, m.DoctorName, m.Notes, m.CreatedBy).Scan(&m.CreatedAt, &m.UpdatedAt)
	return foreignKey(err)
}

func foreignKey(err error) error {
	switch {
	case db.IsForeignKeyViolation(err, "medical_records_user_id_fkey"):
		return ErrUnknownPatient
	case db.IsForeignKeyViolation(err, "medical_records_appointment_id_fkey"):
		return ErrUnknownAppointment
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	m, err := scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM `+from+` WHERE m.id = $1`, id))
	return m, db.NotFound(err)
}

func (r *repoPG) Update(ctx context.Context, m *MedicalRecord) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medical_records SET
			appointment_id = $2, record_date = $3, symptoms = NULLIF($4, ''), diagnosis = NULLIF($5, ''),
			treatment = NULLIF($6, ''), prescription = NULLIF($7, ''), doctor_name = NULLIF($8, ''),
			notes = NULLIF($9, ''), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		m.ID, m.AppointmentID, m.RecordDate, m.Symptoms, m.Diagnosis,
		m.Treatment, m.Prescription, m.DoctorName, m.Notes).Scan(&m.UpdatedAt)
	return foreignKey(db.NotFound(err))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medical_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*MedicalRecord, int, error) {
	q := db.NewSelectQuery(from, cols).
		Search(f.Search, "u.full_name", "m.diagnosis").
		Eq("m.user_id::text", f.UserID).
		Between("m.record_date", f.DateFrom, f.DateTo).
		OrderBy("m.record_date DESC, m.created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MedicalRecord
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
