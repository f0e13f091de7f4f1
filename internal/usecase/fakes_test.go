package usecase

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/core/port"
	"github.com/213020aumc/matcha/internal/infra/security"
	"github.com/213020aumc/matcha/internal/repository"
)

// memState is the whole in-memory database. Transactions work on a clone and swap it in on commit.
type memState struct {
	users        map[string]domain.User
	challenges   []domain.OtpChallenge
	basics       map[string]domain.BasicProfile
	documents    []domain.IdentityDocument
	health       map[string]domain.HealthRecord
	genetic      map[string]domain.GeneticRecord
	compensation map[string]domain.CompensationRecord
	legal        map[string]domain.LegalRecord
	roles        map[string]domain.Role
	rolePerms    map[string][]string
	permissions  map[string]domain.Permission
	settings     map[string]domain.Setting
}

func newMemState() *memState {
	return &memState{
		users:        map[string]domain.User{},
		basics:       map[string]domain.BasicProfile{},
		health:       map[string]domain.HealthRecord{},
		genetic:      map[string]domain.GeneticRecord{},
		compensation: map[string]domain.CompensationRecord{},
		legal:        map[string]domain.LegalRecord{},
		roles:        map[string]domain.Role{},
		rolePerms:    map[string][]string{},
		permissions:  map[string]domain.Permission{},
		settings:     map[string]domain.Setting{},
	}
}

func (s *memState) clone() *memState {
	cp := &memState{
		users:        maps.Clone(s.users),
		challenges:   slices.Clone(s.challenges),
		basics:       maps.Clone(s.basics),
		documents:    slices.Clone(s.documents),
		health:       maps.Clone(s.health),
		genetic:      maps.Clone(s.genetic),
		compensation: maps.Clone(s.compensation),
		legal:        maps.Clone(s.legal),
		roles:        maps.Clone(s.roles),
		rolePerms:    make(map[string][]string, len(s.rolePerms)),
		permissions:  maps.Clone(s.permissions),
		settings:     maps.Clone(s.settings),
	}
	for k, v := range s.rolePerms {
		cp.rolePerms[k] = slices.Clone(v)
	}
	return cp
}

type memDB struct {
	mu    sync.Mutex
	state *memState
}

func (db *memDB) do(fn func(st *memState) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.state)
}

// memStore implements port.Transactor over memState. Transactions are serialized, which stands in
// for the row locks the postgres store relies on.
type memStore struct {
	txMu sync.Mutex
	live *memDB

	failMu sync.Mutex
	fail   map[string]error

	writes int
	now    func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		live: &memDB{state: newMemState()},
		fail: map[string]error{},
		now:  now,
	}
}

// failOn makes every later call to op return err.
func (m *memStore) failOn(op string, err error) {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	m.fail[op] = err
}

func (m *memStore) check(op string) error {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	return m.fail[op]
}

func (m *memStore) wrote() {
	m.failMu.Lock()
	m.writes++
	m.failMu.Unlock()
}

func (m *memStore) writeCount() int {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	return m.writes
}

func (m *memStore) repos() port.Repositories {
	return m.bind(m.live)
}

func (m *memStore) bind(db *memDB) port.Repositories {
	return port.Repositories{
		Users:       &memUsers{m: m, db: db},
		Challenges:  &memChallenges{m: m, db: db},
		Profiles:    &memProfiles{m: m, db: db},
		Roles:       &memRoles{m: m, db: db},
		Permissions: &memPermissions{m: m, db: db},
		Settings:    &memSettings{m: m, db: db},
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos port.Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.live.mu.Lock()
	tx := &memDB{state: m.live.state.clone()}
	m.live.mu.Unlock()

	if err := fn(ctx, m.bind(tx)); err != nil {
		return err
	}
	if err := m.check("commit"); err != nil {
		return err
	}

	m.live.mu.Lock()
	m.live.state = tx.state
	m.live.mu.Unlock()
	return nil
}

// snapshot returns a copy of the committed state for assertions.
func (m *memStore) snapshot() *memState {
	m.live.mu.Lock()
	defer m.live.mu.Unlock()
	return m.live.state.clone()
}

func (m *memStore) user(t *testing.T, id string) domain.User {
	t.Helper()
	u, ok := m.snapshot().users[id]
	if !ok {
		t.Fatalf("user %s not stored", id)
	}
	return u
}

func (m *memStore) seedUser(u domain.User) domain.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.ProfileStatus == "" {
		u.ProfileStatus = domain.ProfileStatusDraft
	}
	u.Email = domain.NormalizeEmail(u.Email)
	_ = m.live.do(func(st *memState) error {
		st.users[u.ID] = u
		return nil
	})
	return u
}

// seedRole stores a role granting slugs, creating permissions as needed.
func (m *memStore) seedRole(name string, isSystem bool, slugs ...string) domain.Role {
	role := domain.Role{ID: uuid.NewString(), Name: name, Slug: RoleSlug(name), IsSystem: isSystem}
	_ = m.live.do(func(st *memState) error {
		var ids []string
		for _, slug := range slugs {
			p := ensurePermission(st, domain.PermissionSpec{Slug: slug})
			ids = append(ids, p.ID)
		}
		st.roles[role.ID] = role
		st.rolePerms[role.ID] = ids
		return nil
	})
	return role
}

// seedAdmin stores a user holding a role with slugs.
func (m *memStore) seedAdmin(email string, slugs ...string) domain.User {
	role := m.seedRole("Role "+email, false, slugs...)
	return m.seedUser(domain.User{Email: email, AccessRoleID: &role.ID})
}

type memUsers struct {
	m  *memStore
	db *memDB
}

func (r *memUsers) FindOrCreateByEmail(_ context.Context, email string) (*domain.User, bool, error) {
	if err := r.m.check("Users.FindOrCreateByEmail"); err != nil {
		return nil, false, err
	}
	var (
		out     domain.User
		created bool
	)
	err := r.db.do(func(st *memState) error {
		for _, u := range st.users {
			if u.Email == email {
				out = u
				return nil
			}
		}
		now := r.m.now()
		out = domain.User{
			ID:            uuid.NewString(),
			Email:         email,
			ProfileStatus: domain.ProfileStatusDraft,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		st.users[out.ID] = out
		created = true
		return nil
	})
	return &out, created, err
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if err := r.m.check("Users.GetByID"); err != nil {
		return nil, err
	}
	var out domain.User
	err := r.db.do(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	var out *domain.User
	err := r.db.do(func(st *memState) error {
		for _, u := range st.users {
			if u.Email == email {
				u := u
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *memUsers) update(id string, fn func(u *domain.User) error) (*domain.User, error) {
	var out domain.User
	err := r.db.do(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		if err := fn(&u); err != nil {
			return err
		}
		u.UpdatedAt = r.m.now()
		st.users[id] = u
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.m.wrote()
	return &out, nil
}

func (r *memUsers) UpdateOnboarding(_ context.Context, id string, decl domain.OnboardingDeclaration) (*domain.User, error) {
	return r.update(id, func(u *domain.User) error {
		u.Gender = &decl.Gender
		u.Role = &decl.Role
		u.ServiceType = &decl.ServiceType
		u.InterestedIn = &decl.InterestedIn
		u.PairingTypes = decl.PairingTypes
		u.TermsAccepted = decl.TermsAccepted
		return nil
	})
}

func (r *memUsers) AdvanceOnboardingStep(_ context.Context, id string, step int) (bool, error) {
	if err := r.m.check("Users.AdvanceOnboardingStep"); err != nil {
		return false, err
	}
	advanced := false
	_, err := r.update(id, func(u *domain.User) error {
		if step > u.OnboardingStep {
			u.OnboardingStep = step
			advanced = true
		}
		return nil
	})
	return advanced, err
}

func (r *memUsers) MarkSubmitted(_ context.Context, id string, at time.Time) (*domain.User, error) {
	return r.update(id, func(u *domain.User) error {
		u.ProfileStatus = domain.ProfileStatusPendingReview
		u.OnboardingStep = max(u.OnboardingStep, domain.OnboardingStepFinal)
		u.SubmittedAt = &at
		return nil
	})
}

func (r *memUsers) TransitionReview(_ context.Context, id string, from, to domain.ProfileStatus, review port.ReviewRecord) (*domain.User, error) {
	return r.update(id, func(u *domain.User) error {
		if u.ProfileStatus != from {
			return repository.ErrNotFound
		}
		u.ProfileStatus = to
		u.ReviewedBy = &review.ReviewedBy
		u.ReviewedAt = &review.ReviewedAt
		u.RejectionReason = review.Reason
		return nil
	})
}

func (r *memUsers) ListByStatus(_ context.Context, status domain.ProfileStatus) ([]domain.User, error) {
	var out []domain.User
	_ = r.db.do(func(st *memState) error {
		for _, u := range st.users {
			if u.ProfileStatus == status {
				out = append(out, u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].SubmittedAt, out[j].SubmittedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.Before(*b)
	})
	return out, nil
}

func (r *memUsers) SetAccessRole(_ context.Context, id string, roleID *string) error {
	_, err := r.update(id, func(u *domain.User) error {
		u.AccessRoleID = roleID
		return nil
	})
	return err
}

type memChallenges struct {
	m  *memStore
	db *memDB
}

func (r *memChallenges) Create(_ context.Context, c domain.OtpChallenge) error {
	if err := r.m.check("Challenges.Create"); err != nil {
		return err
	}
	return r.db.do(func(st *memState) error {
		st.challenges = append(st.challenges, c)
		return nil
	})
}

func (r *memChallenges) LatestForUpdate(_ context.Context, userID string) (*domain.OtpChallenge, error) {
	var out *domain.OtpChallenge
	err := r.db.do(func(st *memState) error {
		for i := len(st.challenges) - 1; i >= 0; i-- {
			if st.challenges[i].UserID == userID {
				c := st.challenges[i]
				out = &c
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *memChallenges) MarkConsumed(_ context.Context, id string, at time.Time) (bool, error) {
	consumed := false
	err := r.db.do(func(st *memState) error {
		for i := range st.challenges {
			if st.challenges[i].ID == id && st.challenges[i].ConsumedAt == nil {
				st.challenges[i].ConsumedAt = &at
				consumed = true
			}
		}
		return nil
	})
	return consumed, err
}

type memProfiles struct {
	m  *memStore
	db *memDB
}

func (r *memProfiles) GetBasics(_ context.Context, userID string) (*domain.BasicProfile, error) {
	return getRecord(r.db, func(st *memState) map[string]domain.BasicProfile { return st.basics }, userID)
}

func (r *memProfiles) upsertBasics(userID string, apply func(p *domain.BasicProfile)) (*domain.BasicProfile, error) {
	if err := r.m.check("Profiles.UpsertBasics"); err != nil {
		return nil, err
	}
	return upsertRecord(r.m, r.db, func(st *memState) map[string]domain.BasicProfile { return st.basics }, userID,
		func(p *domain.BasicProfile) { p.UserID = userID; apply(p) })
}

func (r *memProfiles) UpsertBasics(_ context.Context, userID string, patch domain.BasicsPatch) (*domain.BasicProfile, error) {
	return r.upsertBasics(userID, func(p *domain.BasicProfile) {
		p.LegalName = patch.LegalName.Merge(p.LegalName)
		if patch.DOB.Set {
			p.DOB = nil
			if patch.DOB.Value != nil {
				t := patch.DOB.Value.Time
				p.DOB = &t
			}
		}
		p.PhoneNumber = patch.PhoneNumber.Merge(p.PhoneNumber)
		p.Address = patch.Address.Merge(p.Address)
	})
}

func (r *memProfiles) UpsertPhotos(_ context.Context, userID string, patch domain.PhotosPatch) (*domain.BasicProfile, error) {
	return r.upsertBasics(userID, func(p *domain.BasicProfile) {
		p.BabyPhotoURL = patch.BabyPhotoURL.Merge(p.BabyPhotoURL)
		p.CurrentPhotoURL = patch.CurrentPhotoURL.Merge(p.CurrentPhotoURL)
	})
}

func (r *memProfiles) UpsertBackground(_ context.Context, userID string, patch domain.BackgroundPatch) (*domain.BasicProfile, error) {
	return r.upsertBasics(userID, func(p *domain.BasicProfile) {
		p.Education = patch.Education.Merge(p.Education)
		p.Occupation = patch.Occupation.Merge(p.Occupation)
		p.Nationality = patch.Nationality.Merge(p.Nationality)
		p.Diet = patch.Diet.Merge(p.Diet)
		p.Height = patch.Height.Merge(p.Height)
		p.Weight = patch.Weight.Merge(p.Weight)
		p.BodyBuild = patch.BodyBuild.Merge(p.BodyBuild)
		p.HairColor = patch.HairColor.Merge(p.HairColor)
		p.EyeColor = patch.EyeColor.Merge(p.EyeColor)
		p.Race = patch.Race.Merge(p.Race)
		p.Orientation = patch.Orientation.Merge(p.Orientation)
		p.Bio = patch.Bio.Merge(p.Bio)
	})
}

func (r *memProfiles) AddIdentityDocument(_ context.Context, doc domain.IdentityDocument) (*domain.IdentityDocument, error) {
	err := r.db.do(func(st *memState) error {
		st.documents = append(st.documents, doc)
		return nil
	})
	r.m.wrote()
	return &doc, err
}

func (r *memProfiles) ListIdentityDocuments(_ context.Context, userID string) ([]domain.IdentityDocument, error) {
	docs := make([]domain.IdentityDocument, 0)
	_ = r.db.do(func(st *memState) error {
		for _, d := range st.documents {
			if d.UserID == userID {
				docs = append(docs, d)
			}
		}
		return nil
	})
	return docs, nil
}

func (r *memProfiles) GetHealth(_ context.Context, userID string) (*domain.HealthRecord, error) {
	return getRecord(r.db, func(st *memState) map[string]domain.HealthRecord { return st.health }, userID)
}

func (r *memProfiles) UpsertHealth(_ context.Context, userID string, patch domain.HealthPatch) (*domain.HealthRecord, error) {
	return upsertRecord(r.m, r.db, func(st *memState) map[string]domain.HealthRecord { return st.health }, userID,
		func(h *domain.HealthRecord) {
			h.UserID = userID
			h.HasDiabetes = patch.HasDiabetes.Merge(h.HasDiabetes)
			h.HasHeartCondition = patch.HasHeartCondition.Merge(h.HasHeartCondition)
			h.HasAutoimmune = patch.HasAutoimmune.Merge(h.HasAutoimmune)
			h.MentalHealthHistory = patch.MentalHealthHistory.Merge(h.MentalHealthHistory)
			h.HIVHepStatus = patch.HIVHepStatus.Merge(h.HIVHepStatus)
			h.HasCancer = patch.HasCancer.Merge(h.HasCancer)
			h.HasNeuroDisorder = patch.HasNeuroDisorder.Merge(h.HasNeuroDisorder)
			h.HasRespiratory = patch.HasRespiratory.Merge(h.HasRespiratory)
			h.OtherConditions = patch.OtherConditions.Merge(h.OtherConditions)
			h.MajorSurgeries = patch.MajorSurgeries.Merge(h.MajorSurgeries)
			h.Allergies = patch.Allergies.Merge(h.Allergies)
			h.AllergiesDetails = patch.AllergiesDetails.Merge(h.AllergiesDetails)
			h.CMVStatus = patch.CMVStatus.Merge(h.CMVStatus)
			h.NeedleUsage = patch.NeedleUsage.Merge(h.NeedleUsage)
			h.TransfusionHistory = patch.TransfusionHistory.Merge(h.TransfusionHistory)
			h.MalariaRisk = patch.MalariaRisk.Merge(h.MalariaRisk)
			h.ZikaRisk = patch.ZikaRisk.Merge(h.ZikaRisk)
			h.MenstrualRegularity = patch.MenstrualRegularity.Merge(h.MenstrualRegularity)
			h.PregnancyHistory = patch.PregnancyHistory.Merge(h.PregnancyHistory)
			h.ReproductiveConds = patch.ReproductiveConds.Merge(h.ReproductiveConds)
		})
}

func (r *memProfiles) GetGenetic(_ context.Context, userID string) (*domain.GeneticRecord, error) {
	return getRecord(r.db, func(st *memState) map[string]domain.GeneticRecord { return st.genetic }, userID)
}

func (r *memProfiles) UpsertGenetic(_ context.Context, userID string, patch domain.GeneticPatch) (*domain.GeneticRecord, error) {
	return upsertRecord(r.m, r.db, func(st *memState) map[string]domain.GeneticRecord { return st.genetic }, userID,
		func(g *domain.GeneticRecord) {
			g.UserID = userID
			if patch.CarrierConditions.Set {
				g.CarrierConditions = nil
				if patch.CarrierConditions.Value != nil {
					g.CarrierConditions = []string(*patch.CarrierConditions.Value)
				}
			}
			g.ReportFileURL = patch.ReportFileURL.Merge(g.ReportFileURL)
		})
}

func (r *memProfiles) GetCompensation(_ context.Context, userID string) (*domain.CompensationRecord, error) {
	return getRecord(r.db, func(st *memState) map[string]domain.CompensationRecord { return st.compensation }, userID)
}

func (r *memProfiles) UpsertCompensation(_ context.Context, userID string, patch domain.CompensationPatch) (*domain.CompensationRecord, error) {
	return upsertRecord(r.m, r.db, func(st *memState) map[string]domain.CompensationRecord { return st.compensation }, userID,
		func(c *domain.CompensationRecord) {
			c.UserID = userID
			c.IsInterested = patch.IsInterested.Merge(c.IsInterested)
			c.AllowBidding = patch.AllowBidding.Merge(c.AllowBidding)
			mergeDecimal(&c.AskingPrice, patch.AskingPrice)
			mergeDecimal(&c.MinAcceptedPrice, patch.MinAcceptedPrice)
			mergeDecimal(&c.BuyNowPrice, patch.BuyNowPrice)
		})
}

func mergeDecimal(dst *decimal.NullDecimal, f domain.Field[decimal.Decimal]) {
	if !f.Set {
		return
	}
	if f.Value == nil {
		*dst = decimal.NullDecimal{}
		return
	}
	*dst = decimal.NewNullDecimal(*f.Value)
}

func (r *memProfiles) GetLegal(_ context.Context, userID string) (*domain.LegalRecord, error) {
	return getRecord(r.db, func(st *memState) map[string]domain.LegalRecord { return st.legal }, userID)
}

func (r *memProfiles) UpsertLegal(_ context.Context, userID string, legal domain.LegalSubmission) (*domain.LegalRecord, error) {
	return upsertRecord(r.m, r.db, func(st *memState) map[string]domain.LegalRecord { return st.legal }, userID,
		func(l *domain.LegalRecord) {
			l.UserID = userID
			l.ConsentAgreed = legal.ConsentAgreed
			l.AnonymityPreference = legal.AnonymityPreference
		})
}

func (r *memProfiles) LoadAggregates(_ context.Context, users []domain.User) ([]domain.ProfileAggregate, error) {
	if err := r.m.check("Profiles.LoadAggregates"); err != nil {
		return nil, err
	}
	out := make([]domain.ProfileAggregate, 0, len(users))
	_ = r.db.do(func(st *memState) error {
		for _, u := range users {
			agg := domain.ProfileAggregate{User: u, IdentityDocuments: []domain.IdentityDocument{}}
			if p, ok := st.basics[u.ID]; ok {
				agg.Profile = &p
			}
			for _, d := range st.documents {
				if d.UserID == u.ID {
					agg.IdentityDocuments = append(agg.IdentityDocuments, d)
				}
			}
			if h, ok := st.health[u.ID]; ok {
				agg.Health = &h
			}
			if g, ok := st.genetic[u.ID]; ok {
				agg.Genetic = &g
			}
			if c, ok := st.compensation[u.ID]; ok {
				agg.Compensation = &c
			}
			if l, ok := st.legal[u.ID]; ok {
				agg.Legal = &l
			}
			out = append(out, agg)
		}
		return nil
	})
	return out, nil
}

func getRecord[T any](db *memDB, table func(*memState) map[string]T, userID string) (*T, error) {
	var out *T
	err := db.do(func(st *memState) error {
		rec, ok := table(st)[userID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &rec
		return nil
	})
	return out, err
}

func upsertRecord[T any](m *memStore, db *memDB, table func(*memState) map[string]T, userID string, apply func(*T)) (*T, error) {
	var out T
	err := db.do(func(st *memState) error {
		if _, ok := st.users[userID]; !ok {
			return fmt.Errorf("insert profile record: foreign key violation for user %s", userID)
		}
		rec := table(st)[userID]
		apply(&rec)
		table(st)[userID] = rec
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.wrote()
	return &out, nil
}

type memRoles struct {
	m  *memStore
	db *memDB
}

func (r *memRoles) withPermissions(st *memState, role domain.Role) domain.Role {
	role.Permissions = nil
	for _, id := range st.rolePerms[role.ID] {
		if p, ok := st.permissions[id]; ok {
			role.Permissions = append(role.Permissions, p)
		}
	}
	return role
}

func (r *memRoles) Create(_ context.Context, role domain.Role) error {
	return r.db.do(func(st *memState) error {
		for _, existing := range st.roles {
			if existing.Slug == role.Slug {
				return repository.ErrConflict
			}
		}
		role.Permissions = nil
		st.roles[role.ID] = role
		return nil
	})
}

func (r *memRoles) GetByID(_ context.Context, id string) (*domain.Role, error) {
	if err := r.m.check("Roles.GetByID"); err != nil {
		return nil, err
	}
	var out domain.Role
	err := r.db.do(func(st *memState) error {
		role, ok := st.roles[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = r.withPermissions(st, role)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memRoles) GetBySlug(_ context.Context, slug string) (*domain.Role, error) {
	var out domain.Role
	err := r.db.do(func(st *memState) error {
		for _, role := range st.roles {
			if role.Slug == slug {
				out = r.withPermissions(st, role)
				return nil
			}
		}
		return repository.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memRoles) List(_ context.Context) ([]domain.Role, error) {
	var out []domain.Role
	_ = r.db.do(func(st *memState) error {
		for _, role := range st.roles {
			out = append(out, r.withPermissions(st, role))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRoles) Delete(_ context.Context, id string) error {
	return r.db.do(func(st *memState) error {
		if _, ok := st.roles[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.roles, id)
		delete(st.rolePerms, id)
		for uid, u := range st.users {
			if u.AccessRoleID != nil && *u.AccessRoleID == id {
				u.AccessRoleID = nil
				st.users[uid] = u
			}
		}
		return nil
	})
}

func (r *memRoles) SetPermissions(_ context.Context, roleID string, permissionIDs []string) error {
	if err := r.m.check("Roles.SetPermissions"); err != nil {
		return err
	}
	return r.db.do(func(st *memState) error {
		st.rolePerms[roleID] = slices.Clone(permissionIDs)
		return nil
	})
}

type memPermissions struct {
	m  *memStore
	db *memDB
}

func ensurePermission(st *memState, spec domain.PermissionSpec) domain.Permission {
	for id, p := range st.permissions {
		if p.Slug == spec.Slug {
			if spec.Description != "" {
				d := spec.Description
				p.Description = &d
				st.permissions[id] = p
			}
			return p
		}
	}
	p := domain.Permission{ID: uuid.NewString(), Slug: spec.Slug}
	if spec.Description != "" {
		d := spec.Description
		p.Description = &d
	}
	st.permissions[p.ID] = p
	return p
}

func (r *memPermissions) List(_ context.Context) ([]domain.Permission, error) {
	out := make([]domain.Permission, 0)
	_ = r.db.do(func(st *memState) error {
		for _, p := range st.permissions {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *memPermissions) GetBySlugs(ctx context.Context, slugs []string) ([]domain.Permission, error) {
	all, _ := r.List(ctx)
	out := make([]domain.Permission, 0, len(slugs))
	for _, p := range all {
		if slices.Contains(slugs, p.Slug) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPermissions) Ensure(_ context.Context, spec domain.PermissionSpec) (*domain.Permission, error) {
	var out domain.Permission
	_ = r.db.do(func(st *memState) error {
		out = ensurePermission(st, spec)
		return nil
	})
	return &out, nil
}

type memSettings struct {
	m  *memStore
	db *memDB
}

func (r *memSettings) List(_ context.Context) ([]domain.Setting, error) {
	out := make([]domain.Setting, 0)
	_ = r.db.do(func(st *memState) error {
		for _, s := range st.settings {
			out = append(out, s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *memSettings) Get(_ context.Context, key string) (*domain.Setting, error) {
	if err := r.m.check("Settings.Get"); err != nil {
		return nil, err
	}
	var out domain.Setting
	err := r.db.do(func(st *memState) error {
		s, ok := st.settings[key]
		if !ok {
			return repository.ErrNotFound
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memSettings) Upsert(_ context.Context, key, value string) error {
	if err := r.m.check("Settings.Upsert:" + key); err != nil {
		return err
	}
	return r.db.do(func(st *memState) error {
		st.settings[key] = domain.Setting{Key: key, Value: value, UpdatedAt: r.m.now()}
		return nil
	})
}

func (r *memSettings) InsertMissing(_ context.Context, key, value string) error {
	return r.db.do(func(st *memState) error {
		if _, ok := st.settings[key]; !ok {
			st.settings[key] = domain.Setting{Key: key, Value: value, UpdatedAt: r.m.now()}
		}
		return nil
	})
}

func (r *memSettings) Delete(_ context.Context, key string) error {
	return r.db.do(func(st *memState) error {
		if _, ok := st.settings[key]; !ok {
			return repository.ErrNotFound
		}
		delete(st.settings, key)
		return nil
	})
}

type notification struct {
	address string
	kind    port.NotificationKind
	data    map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, address string, kind port.NotificationKind, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification{address: address, kind: kind, data: data})
	return nil
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

type recordingEvents struct {
	mu             sync.Mutex
	registered     []domain.UserRegisteredEvent
	submitted      []domain.ProfileSubmittedEvent
	statusChanges  []domain.ProfileStatusChangedEvent
	roleAssignment []domain.RoleAssignedEvent
	err            error
}

func (e *recordingEvents) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, event)
	return e.err
}

func (e *recordingEvents) PublishProfileSubmitted(_ context.Context, event domain.ProfileSubmittedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitted = append(e.submitted, event)
	return e.err
}

func (e *recordingEvents) PublishProfileStatusChanged(_ context.Context, event domain.ProfileStatusChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusChanges = append(e.statusChanges, event)
	return e.err
}

func (e *recordingEvents) PublishRoleAssigned(_ context.Context, event domain.RoleAssignedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roleAssignment = append(e.roleAssignment, event)
	return e.err
}

type recordingMetrics struct {
	mu       sync.Mutex
	issued   int
	verified map[string]int
	advanced map[int]int
	reviews  map[domain.ProfileStatus]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		verified: map[string]int{},
		advanced: map[int]int{},
		reviews:  map[domain.ProfileStatus]int{},
	}
}

func (m *recordingMetrics) OTPIssued() {
	m.mu.Lock()
	m.issued++
	m.mu.Unlock()
}

func (m *recordingMetrics) OTPVerified(outcome string) {
	m.mu.Lock()
	m.verified[outcome]++
	m.mu.Unlock()
}

func (m *recordingMetrics) StageAdvanced(step int) {
	m.mu.Lock()
	m.advanced[step]++
	m.mu.Unlock()
}

func (m *recordingMetrics) ReviewDecided(status domain.ProfileStatus) {
	m.mu.Lock()
	m.reviews[status]++
	m.mu.Unlock()
}

// plainHasher keeps tests fast; argon2 has its own tests.
type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) { return "hashed:" + secret, nil }

func (plainHasher) Verify(secret, encoded string) (bool, error) {
	return encoded == "hashed:"+secret, nil
}

type sequenceCodes struct {
	mu    sync.Mutex
	codes []string
}

func (g *sequenceCodes) Generate(length int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.codes) == 0 {
		return strings.Repeat("1", length), nil
	}
	code := g.codes[0]
	g.codes = g.codes[1:]
	return code, nil
}

type fakeTokens struct {
	ttl time.Duration
}

func (f fakeTokens) Issue(userID string, now time.Time) (string, time.Time, error) {
	return "session:" + userID, now.Add(f.ttl), nil
}

func (fakeTokens) Parse(token string) (string, error) {
	userID, ok := strings.CutPrefix(token, "session:")
	if !ok || userID == "" {
		return "", domain.ErrInvalidSessionToken
	}
	return userID, nil
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (s *memObjects) Put(_ context.Context, obj port.UploadedObject) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string]string{}
	}
	s.objects[obj.Key] = obj.ContentType
	return "https://cdn.test/" + obj.Key, nil
}

var errInjected = errors.New("injected failure")

// testEnv wires every service over one memStore with a controllable clock.
type testEnv struct {
	clockMu sync.Mutex
	clock   time.Time

	store    *memStore
	notifier *recordingNotifier
	events   *recordingEvents
	metrics  *recordingMetrics
	codes    *sequenceCodes
	objects  *memObjects

	authorizer *Authorizer
	auth       *AuthService
	profiles   *ProfileService
	review     *ReviewService
	rbac       *RBACService
	settings   *SettingsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		notifier: &recordingNotifier{},
		events:   &recordingEvents{},
		metrics:  newRecordingMetrics(),
		codes:    &sequenceCodes{},
		objects:  &memObjects{},
	}
	env.store = newMemStore(env.now)
	repos := env.store.repos()
	log := zaptest.NewLogger(t)

	env.authorizer = NewAuthorizer(repos.Users, repos.Roles)
	env.auth = NewAuthService(env.store, repos, env.authorizer, plainHasher{}, env.codes,
		fakeTokens{ttl: 24 * time.Hour}, env.notifier, env.events, env.metrics,
		OTPPolicy{TTL: 10 * time.Minute, CodeLength: 6}, log)
	env.auth.now = env.now
	env.profiles = NewProfileService(env.store, repos, security.NewTextSanitizer(), env.objects,
		env.events, env.metrics, 10<<20, log)
	env.profiles.now = env.now
	env.review = NewReviewService(env.store, repos, env.authorizer, env.notifier, env.events, env.metrics, log)
	env.review.now = env.now
	env.rbac = NewRBACService(env.store, repos, env.authorizer, env.events, false, log)
	env.rbac.now = env.now
	env.settings = NewSettingsService(env.store, repos, env.authorizer, log)
	return env
}

func (e *testEnv) now() time.Time {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	return e.clock
}

func (e *testEnv) advance(d time.Duration) {
	e.clockMu.Lock()
	e.clock = e.clock.Add(d)
	e.clockMu.Unlock()
}

// signIn runs the full code exchange for email and returns the verified user.
func (e *testEnv) signIn(t *testing.T, email string) domain.User {
	t.Helper()
	challenge, err := e.auth.IssueChallenge(context.Background(), email)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	user, err := e.auth.VerifyChallenge(context.Background(), email, challenge.Code)
	if err != nil {
		t.Fatalf("VerifyChallenge: %v", err)
	}
	return *user
}

func expectKind(t *testing.T, err error, kind domain.ErrorKind) *domain.Error {
	t.Helper()
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *domain.Error of kind %s, got %v", kind, err)
	}
	if de.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, de.Kind, err)
	}
	return de
}
