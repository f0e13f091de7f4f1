package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
)

const (
	profilesTable     = "user_profiles"
	documentsTable    = "identity_documents"
	healthTable       = "user_health"
	geneticsTable     = "user_genetics"
	compensationTable = "user_compensation"
	legalTable        = "user_legal"
)

var profileColumns = []string{
	"user_id", "legal_name", "dob", "phone_number", "address", "baby_photo_url", "current_photo_url",
	"education", "occupation", "nationality", "diet", "height", "weight", "body_build", "hair_color",
	"eye_color", "race", "orientation", "bio", "created_at", "updated_at",
}

var documentColumns = []string{"id", "user_id", "type", "file_url", "uploaded_at"}

var healthColumns = []string{
	"user_id", "has_diabetes", "has_heart_condition", "has_autoimmune", "mental_health_history",
	"hiv_hep_status", "has_cancer", "has_neuro_disorder", "has_respiratory", "other_conditions",
	"major_surgeries", "allergies", "allergies_details", "cmv_status", "needle_usage",
	"transfusion_history", "malaria_risk", "zika_risk", "menstrual_regularity", "pregnancy_history",
	"reproductive_conds", "created_at", "updated_at",
}

var geneticColumns = []string{"user_id", "carrier_conditions", "report_file_url", "created_at", "updated_at"}

var compensationColumns = []string{
	"user_id", "is_interested", "allow_bidding", "asking_price", "min_accepted_price", "buy_now_price",
	"created_at", "updated_at",
}

var legalColumns = []string{"user_id", "consent_agreed", "anonymity_preference", "created_at", "updated_at"}

// ProfileRepository persists the per-user profile sub-records.
type ProfileRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	// parallel is false inside a transaction, where a single connection cannot run queries concurrently.
	parallel bool
}

// NewProfileRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewProfileRepository(exec pgExecutor) *ProfileRepository {
	return &ProfileRepository{
		exec:     exec,
		builder:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		parallel: true,
	}
}

// WithTx returns a repository configured to execute within the provided transaction.
func (r *ProfileRepository) WithTx(tx pgx.Tx) *ProfileRepository {
	if tx == nil {
		return r
	}
	return &ProfileRepository{exec: tx, builder: r.builder, parallel: false}
}

type assignments struct {
	columns []string
	values  []any
}

func (a *assignments) add(column string, value any) {
	a.columns = append(a.columns, column)
	a.values = append(a.values, value)
}

func setField[T any](a *assignments, column string, f domain.Field[T]) {
	if !f.Set {
		return
	}
	if f.Value == nil {
		a.add(column, nil)
		return
	}
	a.add(column, *f.Value)
}

// upsert inserts or updates the sub-record keyed by userID, touching only the assigned columns.
func (r *ProfileRepository) upsert(ctx context.Context, table, userID string, a assignments, returning []string) (pgx.Row, error) {
	columns := append([]string{"user_id"}, a.columns...)
	values := append([]any{userID}, a.values...)

	set := make([]string, 0, len(a.columns)+1)
	for _, column := range a.columns {
		set = append(set, column+" = EXCLUDED."+column)
	}
	set = append(set, "updated_at = now()")

	stmt, args, err := r.builder.Insert(table).
		Columns(columns...).
		Values(values...).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET " + strings.Join(set, ", ") + " RETURNING " + joinColumns(returning)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert %s sql: %w", table, err)
	}
	return r.exec.QueryRow(ctx, stmt, args...), nil
}

func (r *ProfileRepository) selectOne(ctx context.Context, table string, columns []string, userID string) pgx.Row {
	stmt, args, err := r.builder.Select(columns...).
		From(table).
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return errRow{err: fmt.Errorf("build select %s sql: %w", table, err)}
	}
	return r.exec.QueryRow(ctx, stmt, args...)
}

// GetBasics returns the basics/background record.
func (r *ProfileRepository) GetBasics(ctx context.Context, userID string) (*domain.BasicProfile, error) {
	p, err := scanProfile(r.selectOne(ctx, profilesTable, profileColumns, userID))
	if err != nil {
		return nil, translate(err, "select profile")
	}
	return p, nil
}

// UpsertBasics writes stage 1 basic information.
func (r *ProfileRepository) UpsertBasics(ctx context.Context, userID string, patch domain.BasicsPatch) (*domain.BasicProfile, error) {
	var a assignments
	setField(&a, "legal_name", patch.LegalName)
	if patch.DOB.Set {
		if patch.DOB.Value == nil {
			a.add("dob", nil)
		} else {
			a.add("dob", patch.DOB.Value.Time)
		}
	}
	setField(&a, "phone_number", patch.PhoneNumber)
	setField(&a, "address", patch.Address)
	return r.upsertProfile(ctx, userID, a)
}

// UpsertPhotos writes stage 1 photo URLs.
func (r *ProfileRepository) UpsertPhotos(ctx context.Context, userID string, patch domain.PhotosPatch) (*domain.BasicProfile, error) {
	var a assignments
	setField(&a, "baby_photo_url", patch.BabyPhotoURL)
	setField(&a, "current_photo_url", patch.CurrentPhotoURL)
	return r.upsertProfile(ctx, userID, a)
}

// UpsertBackground writes stage 2 background data.
func (r *ProfileRepository) UpsertBackground(ctx context.Context, userID string, patch domain.BackgroundPatch) (*domain.BasicProfile, error) {
	var a assignments
	setField(&a, "education", patch.Education)
	setField(&a, "occupation", patch.Occupation)
	setField(&a, "nationality", patch.Nationality)
	setField(&a, "diet", patch.Diet)
	setField(&a, "height", patch.Height)
	setField(&a, "weight", patch.Weight)
	setField(&a, "body_build", patch.BodyBuild)
	setField(&a, "hair_color", patch.HairColor)
	setField(&a, "eye_color", patch.EyeColor)
	setField(&a, "race", patch.Race)
	setField(&a, "orientation", patch.Orientation)
	setField(&a, "bio", patch.Bio)
	return r.upsertProfile(ctx, userID, a)
}

func (r *ProfileRepository) upsertProfile(ctx context.Context, userID string, a assignments) (*domain.BasicProfile, error) {
	row, err := r.upsert(ctx, profilesTable, userID, a, profileColumns)
	if err != nil {
		return nil, err
	}
	p, err := scanProfile(row)
	if err != nil {
		return nil, translate(err, "upsert profile")
	}
	return p, nil
}

// AddIdentityDocument stores an uploaded identity document.
func (r *ProfileRepository) AddIdentityDocument(ctx context.Context, doc domain.IdentityDocument) (*domain.IdentityDocument, error) {
	stmt, args, err := r.builder.Insert(documentsTable).
		Columns("id", "user_id", "type", "file_url", "uploaded_at").
		Values(doc.ID, doc.UserID, string(doc.Type), doc.FileURL, doc.UploadedAt).
		Suffix("RETURNING " + joinColumns(documentColumns)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert document sql: %w", err)
	}

	stored, err := scanDocument(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return nil, translate(err, "insert document")
	}
	return stored, nil
}

// ListIdentityDocuments returns the user's documents, newest first.
func (r *ProfileRepository) ListIdentityDocuments(ctx context.Context, userID string) ([]domain.IdentityDocument, error) {
	byUser, err := r.documentsFor(ctx, []string{userID})
	if err != nil {
		return nil, err
	}
	docs := byUser[userID]
	if docs == nil {
		docs = []domain.IdentityDocument{}
	}
	return docs, nil
}

// GetHealth returns the health record.
func (r *ProfileRepository) GetHealth(ctx context.Context, userID string) (*domain.HealthRecord, error) {
	h, err := scanHealth(r.selectOne(ctx, healthTable, healthColumns, userID))
	if err != nil {
		return nil, translate(err, "select health")
	}
	return h, nil
}

// UpsertHealth writes stage 3 data.
func (r *ProfileRepository) UpsertHealth(ctx context.Context, userID string, patch domain.HealthPatch) (*domain.HealthRecord, error) {
	var a assignments
	setField(&a, "has_diabetes", patch.HasDiabetes)
	setField(&a, "has_heart_condition", patch.HasHeartCondition)
	setField(&a, "has_autoimmune", patch.HasAutoimmune)
	setField(&a, "mental_health_history", patch.MentalHealthHistory)
	setField(&a, "hiv_hep_status", patch.HIVHepStatus)
	setField(&a, "has_cancer", patch.HasCancer)
	setField(&a, "has_neuro_disorder", patch.HasNeuroDisorder)
	setField(&a, "has_respiratory", patch.HasRespiratory)
	setField(&a, "other_conditions", patch.OtherConditions)
	setField(&a, "major_surgeries", patch.MajorSurgeries)
	setField(&a, "allergies", patch.Allergies)
	setField(&a, "allergies_details", patch.AllergiesDetails)
	setField(&a, "cmv_status", patch.CMVStatus)
	setField(&a, "needle_usage", patch.NeedleUsage)
	setField(&a, "transfusion_history", patch.TransfusionHistory)
	setField(&a, "malaria_risk", patch.MalariaRisk)
	setField(&a, "zika_risk", patch.ZikaRisk)
	setField(&a, "menstrual_regularity", patch.MenstrualRegularity)
	setField(&a, "pregnancy_history", patch.PregnancyHistory)
	setField(&a, "reproductive_conds", patch.ReproductiveConds)

	row, err := r.upsert(ctx, healthTable, userID, a, healthColumns)
	if err != nil {
		return nil, err
	}
	h, err := scanHealth(row)
	if err != nil {
		return nil, translate(err, "upsert health")
	}
	return h, nil
}

// GetGenetic returns the genetic record.
func (r *ProfileRepository) GetGenetic(ctx context.Context, userID string) (*domain.GeneticRecord, error) {
	g, err := scanGenetic(r.selectOne(ctx, geneticsTable, geneticColumns, userID))
	if err != nil {
		return nil, translate(err, "select genetic")
	}
	return g, nil
}

// UpsertGenetic writes stage 4 data. A cleared condition list is stored as empty.
func (r *ProfileRepository) UpsertGenetic(ctx context.Context, userID string, patch domain.GeneticPatch) (*domain.GeneticRecord, error) {
	var a assignments
	if patch.CarrierConditions.Set {
		conditions := []string{}
		if patch.CarrierConditions.Value != nil {
			conditions = append(conditions, (*patch.CarrierConditions.Value)...)
		}
		a.add("carrier_conditions", conditions)
	}
	setField(&a, "report_file_url", patch.ReportFileURL)

	row, err := r.upsert(ctx, geneticsTable, userID, a, geneticColumns)
	if err != nil {
		return nil, err
	}
	g, err := scanGenetic(row)
	if err != nil {
		return nil, translate(err, "upsert genetic")
	}
	return g, nil
}

// GetCompensation returns the compensation record.
func (r *ProfileRepository) GetCompensation(ctx context.Context, userID string) (*domain.CompensationRecord, error) {
	c, err := scanCompensation(r.selectOne(ctx, compensationTable, compensationColumns, userID))
	if err != nil {
		return nil, translate(err, "select compensation")
	}
	return c, nil
}

// UpsertCompensation writes stage 5 data.
func (r *ProfileRepository) UpsertCompensation(ctx context.Context, userID string, patch domain.CompensationPatch) (*domain.CompensationRecord, error) {
	var a assignments
	setField(&a, "is_interested", patch.IsInterested)
	setField(&a, "allow_bidding", patch.AllowBidding)
	setDecimal(&a, "asking_price", patch.AskingPrice)
	setDecimal(&a, "min_accepted_price", patch.MinAcceptedPrice)
	setDecimal(&a, "buy_now_price", patch.BuyNowPrice)

	row, err := r.upsert(ctx, compensationTable, userID, a, compensationColumns)
	if err != nil {
		return nil, err
	}
	c, err := scanCompensation(row)
	if err != nil {
		return nil, translate(err, "upsert compensation")
	}
	return c, nil
}

func setDecimal(a *assignments, column string, f domain.Field[decimal.Decimal]) {
	if !f.Set {
		return
	}
	if f.Value == nil {
		a.add(column, nil)
		return
	}
	a.add(column, f.Value.String())
}

// GetLegal returns the legal record.
func (r *ProfileRepository) GetLegal(ctx context.Context, userID string) (*domain.LegalRecord, error) {
	l, err := scanLegal(r.selectOne(ctx, legalTable, legalColumns, userID))
	if err != nil {
		return nil, translate(err, "select legal")
	}
	return l, nil
}

// UpsertLegal writes stage 6 consent.
func (r *ProfileRepository) UpsertLegal(ctx context.Context, userID string, legal domain.LegalSubmission) (*domain.LegalRecord, error) {
	var a assignments
	a.add("consent_agreed", legal.ConsentAgreed)
	a.add("anonymity_preference", legal.AnonymityPreference)

	row, err := r.upsert(ctx, legalTable, userID, a, legalColumns)
	if err != nil {
		return nil, err
	}
	l, err := scanLegal(row)
	if err != nil {
		return nil, translate(err, "upsert legal")
	}
	return l, nil
}

// LoadAggregates fetches every sub-record for users with one query per table.
func (r *ProfileRepository) LoadAggregates(ctx context.Context, users []domain.User) ([]domain.ProfileAggregate, error) {
	aggregates := make([]domain.ProfileAggregate, len(users))
	if len(users) == 0 {
		return aggregates, nil
	}

	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}

	var (
		profiles      map[string]*domain.BasicProfile
		documents     map[string][]domain.IdentityDocument
		health        map[string]*domain.HealthRecord
		genetics      map[string]*domain.GeneticRecord
		compensations map[string]*domain.CompensationRecord
		legals        map[string]*domain.LegalRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	if !r.parallel {
		g.SetLimit(1)
	}
	g.Go(func() (err error) {
		profiles, err = collect(gctx, r, profilesTable, profileColumns, ids, scanProfile, func(p *domain.BasicProfile) string { return p.UserID })
		return err
	})
	g.Go(func() (err error) {
		documents, err = r.documentsFor(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		health, err = collect(gctx, r, healthTable, healthColumns, ids, scanHealth, func(h *domain.HealthRecord) string { return h.UserID })
		return err
	})
	g.Go(func() (err error) {
		genetics, err = collect(gctx, r, geneticsTable, geneticColumns, ids, scanGenetic, func(rec *domain.GeneticRecord) string { return rec.UserID })
		return err
	})
	g.Go(func() (err error) {
		compensations, err = collect(gctx, r, compensationTable, compensationColumns, ids, scanCompensation, func(c *domain.CompensationRecord) string { return c.UserID })
		return err
	})
	g.Go(func() (err error) {
		legals, err = collect(gctx, r, legalTable, legalColumns, ids, scanLegal, func(l *domain.LegalRecord) string { return l.UserID })
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, u := range users {
		docs := documents[u.ID]
		if docs == nil {
			docs = []domain.IdentityDocument{}
		}
		aggregates[i] = domain.ProfileAggregate{
			User:              u,
			Profile:           profiles[u.ID],
			IdentityDocuments: docs,
			Health:            health[u.ID],
			Genetic:           genetics[u.ID],
			Compensation:      compensations[u.ID],
			Legal:             legals[u.ID],
		}
	}
	return aggregates, nil
}

func collect[T any](ctx context.Context, r *ProfileRepository, table string, columns, ids []string, scan func(pgx.Row) (*T, error), key func(*T) string) (map[string]*T, error) {
	stmt, args, err := r.builder.Select(columns...).
		From(table).
		Where(squirrel.Eq{"user_id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s sql: %w", table, err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]*T, len(ids))
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out[key(item)] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func (r *ProfileRepository) documentsFor(ctx context.Context, ids []string) (map[string][]domain.IdentityDocument, error) {
	stmt, args, err := r.builder.Select(documentColumns...).
		From(documentsTable).
		Where(squirrel.Eq{"user_id": ids}).
		OrderBy("uploaded_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select documents sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.IdentityDocument)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out[doc.UserID] = append(out[doc.UserID], *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

type errRow struct {
	err error
}

func (e errRow) Scan(...any) error {
	return e.err
}

func scanProfile(row pgx.Row) (*domain.BasicProfile, error) {
	var (
		p                                             domain.BasicProfile
		legalName, phone, address, babyPhoto, current sql.NullString
		education, occupation, nationality, diet      sql.NullString
		bodyBuild, hair, eye, race, orientation, bio  sql.NullString
		dob                                           sql.NullTime
		height, weight                                sql.NullInt64
	)
	if err := row.Scan(
		&p.UserID, &legalName, &dob, &phone, &address, &babyPhoto, &current,
		&education, &occupation, &nationality, &diet, &height, &weight, &bodyBuild, &hair,
		&eye, &race, &orientation, &bio, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.LegalName = stringPtr(legalName)
	p.DOB = timePtr(dob)
	p.PhoneNumber = stringPtr(phone)
	p.Address = stringPtr(address)
	p.BabyPhotoURL = stringPtr(babyPhoto)
	p.CurrentPhotoURL = stringPtr(current)
	p.Education = stringPtr(education)
	p.Occupation = stringPtr(occupation)
	p.Nationality = stringPtr(nationality)
	p.Diet = stringPtr(diet)
	p.Height = intPtr(height)
	p.Weight = intPtr(weight)
	p.BodyBuild = stringPtr(bodyBuild)
	p.HairColor = stringPtr(hair)
	p.EyeColor = stringPtr(eye)
	p.Race = stringPtr(race)
	p.Orientation = stringPtr(orientation)
	p.Bio = stringPtr(bio)
	return &p, nil
}

func scanDocument(row pgx.Row) (*domain.IdentityDocument, error) {
	var (
		d       domain.IdentityDocument
		docType string
	)
	if err := row.Scan(&d.ID, &d.UserID, &docType, &d.FileURL, &d.UploadedAt); err != nil {
		return nil, err
	}
	d.Type = domain.IdentityDocumentType(docType)
	return &d, nil
}

func scanHealth(row pgx.Row) (*domain.HealthRecord, error) {
	var (
		h                                                        domain.HealthRecord
		diabetes, heart, autoimmune, hiv, cancer, neuro          sql.NullBool
		respiratory, allergies, needle, transfusion, malaria     sql.NullBool
		zika, menstrual, pregnancy, reproductive                 sql.NullBool
		mental, other, surgeries, allergyDetails, cmv            sql.NullString
	)
	if err := row.Scan(
		&h.UserID, &diabetes, &heart, &autoimmune, &mental,
		&hiv, &cancer, &neuro, &respiratory, &other,
		&surgeries, &allergies, &allergyDetails, &cmv, &needle,
		&transfusion, &malaria, &zika, &menstrual, &pregnancy,
		&reproductive, &h.CreatedAt, &h.UpdatedAt,
	); err != nil {
		return nil, err
	}

	h.HasDiabetes = boolPtr(diabetes)
	h.HasHeartCondition = boolPtr(heart)
	h.HasAutoimmune = boolPtr(autoimmune)
	h.MentalHealthHistory = stringPtr(mental)
	h.HIVHepStatus = boolPtr(hiv)
	h.HasCancer = boolPtr(cancer)
	h.HasNeuroDisorder = boolPtr(neuro)
	h.HasRespiratory = boolPtr(respiratory)
	h.OtherConditions = stringPtr(other)
	h.MajorSurgeries = stringPtr(surgeries)
	h.Allergies = boolPtr(allergies)
	h.AllergiesDetails = stringPtr(allergyDetails)
	h.CMVStatus = stringPtr(cmv)
	h.NeedleUsage = boolPtr(needle)
	h.TransfusionHistory = boolPtr(transfusion)
	h.MalariaRisk = boolPtr(malaria)
	h.ZikaRisk = boolPtr(zika)
	h.MenstrualRegularity = boolPtr(menstrual)
	h.PregnancyHistory = boolPtr(pregnancy)
	h.ReproductiveConds = boolPtr(reproductive)
	return &h, nil
}

func scanGenetic(row pgx.Row) (*domain.GeneticRecord, error) {
	var (
		g      domain.GeneticRecord
		report sql.NullString
	)
	if err := row.Scan(&g.UserID, &g.CarrierConditions, &report, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if g.CarrierConditions == nil {
		g.CarrierConditions = []string{}
	}
	g.ReportFileURL = stringPtr(report)
	return &g, nil
}

func scanCompensation(row pgx.Row) (*domain.CompensationRecord, error) {
	var (
		c                   domain.CompensationRecord
		interested, bidding sql.NullBool
	)
	if err := row.Scan(
		&c.UserID, &interested, &bidding, &c.AskingPrice, &c.MinAcceptedPrice, &c.BuyNowPrice,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.IsInterested = boolPtr(interested)
	c.AllowBidding = boolPtr(bidding)
	return &c, nil
}

func scanLegal(row pgx.Row) (*domain.LegalRecord, error) {
	var (
		l          domain.LegalRecord
		preference sql.NullString
	)
	if err := row.Scan(&l.UserID, &l.ConsentAgreed, &preference, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.AnonymityPreference = stringPtr(preference)
	return &l, nil
}

var _ port.ProfileRepository = (*ProfileRepository)(nil)
