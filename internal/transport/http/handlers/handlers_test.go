package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/transport/http/middleware"
	"github.com/213020aumc/matcha/internal/usecase"
)

type fakeAuth struct {
	challengeErr error
	loginErr     error
	session      *usecase.Session
	user         *domain.User
}

func (f *fakeAuth) IssueChallenge(ctx context.Context, email string) (*usecase.Challenge, error) {
	if f.challengeErr != nil {
		return nil, f.challengeErr
	}
	return &usecase.Challenge{User: domain.User{Email: domain.NormalizeEmail(email)}}, nil
}

func (f *fakeAuth) Login(ctx context.Context, email, code string) (*usecase.Session, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.session, nil
}

func (f *fakeAuth) ResolveSession(ctx context.Context, token string) (*domain.User, error) {
	if f.user == nil || token != "valid" {
		return nil, domain.ErrInvalidSessionToken
	}
	return f.user, nil
}

type fakeProfiles struct {
	ProfileUsecase

	err            error
	basics         domain.BasicsPatch
	genetic        domain.GeneticPatch
	complete       bool
	report         *usecase.Upload
	reportBody     string
	baby, current  *usecase.Upload
	documentType   domain.IdentityDocumentType
	legal          domain.LegalSubmission
	onboardingDecl domain.OnboardingDeclaration
}

func (f *fakeProfiles) UpdateOnboarding(ctx context.Context, userID string, decl domain.OnboardingDeclaration) (*domain.User, error) {
	f.onboardingDecl = decl
	return &domain.User{ID: userID}, f.err
}

func (f *fakeProfiles) SaveBasics(ctx context.Context, userID string, patch domain.BasicsPatch, isComplete bool) (*domain.BasicProfile, error) {
	f.basics, f.complete = patch, isComplete
	if f.err != nil {
		return nil, f.err
	}
	return &domain.BasicProfile{UserID: userID, LegalName: patch.LegalName.Value}, nil
}

func (f *fakeProfiles) UploadPhotos(ctx context.Context, userID string, baby, current *usecase.Upload) (*domain.BasicProfile, error) {
	f.baby, f.current = baby, current
	return &domain.BasicProfile{UserID: userID}, f.err
}

func (f *fakeProfiles) UploadIdentityDocument(ctx context.Context, userID string, docType domain.IdentityDocumentType, file *usecase.Upload) (*domain.IdentityDocument, error) {
	f.documentType = docType
	if file == nil {
		return nil, domain.ErrFileRequired.WithFields("document")
	}
	return &domain.IdentityDocument{UserID: userID, Type: docType}, f.err
}

func (f *fakeProfiles) SaveGenetic(ctx context.Context, userID string, patch domain.GeneticPatch, report *usecase.Upload, isComplete bool) (*domain.GeneticRecord, error) {
	f.genetic, f.report, f.complete = patch, report, isComplete
	if report != nil {
		body, _ := io.ReadAll(report.Body)
		f.reportBody = string(body)
	}
	return &domain.GeneticRecord{UserID: userID}, f.err
}

func (f *fakeProfiles) SubmitLegal(ctx context.Context, userID string, legal domain.LegalSubmission) (*usecase.Submission, error) {
	f.legal = legal
	if !legal.ConsentAgreed {
		return nil, domain.ErrConsentRequired
	}
	return &usecase.Submission{User: domain.User{ID: userID, ProfileStatus: domain.ProfileStatusPendingReview}}, nil
}

func (f *fakeProfiles) Health(ctx context.Context, userID string) (*domain.HealthRecord, error) {
	return nil, f.err
}

type fakeReview struct {
	err    error
	target domain.ProfileStatus
	reason string
}

func (f *fakeReview) TransitionStatus(ctx context.Context, actorID, userID string, target domain.ProfileStatus, reason string) (*domain.User, error) {
	f.target, f.reason = target, reason
	if f.err != nil {
		return nil, f.err
	}
	return &domain.User{ID: userID, ProfileStatus: target}, nil
}

func (f *fakeReview) ListPending(ctx context.Context, actorID string) ([]domain.ProfileAggregate, error) {
	return nil, f.err
}

func newTestRouter(userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	UseJSONFieldNames()

	r := gin.New()
	r.Use(middleware.EnrichContext())
	if userID != "" {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.UserIDKey, userID)
			c.Next()
		})
	}
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return resp
}

type filePart struct {
	field, name, contentType, body string
}

func multipartRequest(t *testing.T, path string, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.name+`"`)
		header.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte(f.body))
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestLoginMasksAddress(t *testing.T) {
	r := newTestRouter("")
	NewAuthHandler(&fakeAuth{}, CookieSettings{}).RegisterRoutes(r.Group("/auth"), func(c *gin.Context) {})

	rr := serve(r, jsonRequest(http.MethodPost, "/auth/login", `{"email":" Jane@Example.com "}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp MessageResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Message != "OTP sent to j***@example.com" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	rr = serve(r, jsonRequest(http.MethodPost, "/auth/login", `{}`))
	if rr.Code != http.StatusBadRequest || !slices.Equal(decodeError(t, rr).Fields, []string{"email"}) {
		t.Fatalf("expected email field error, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestVerifyOTPSetsSessionCookie(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	auth := &fakeAuth{session: &usecase.Session{
		Token:     "signed",
		ExpiresAt: expires,
		User:      domain.User{ID: "user-1"},
		Redirect:  usecase.Redirect{Path: "/onboarding"},
	}}
	r := newTestRouter("")
	NewAuthHandler(auth, CookieSettings{Name: "jwt", Secure: true}).RegisterRoutes(r.Group("/auth"), func(c *gin.Context) {})

	rr := serve(r, jsonRequest(http.MethodPost, "/auth/verify-otp", `{"email":"a@b.com","otp":"123456"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != "jwt" || cookie.Value != "signed" || !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("unexpected cookie: %+v", cookie)
	}
	if cookie.MaxAge <= 0 || cookie.MaxAge > 3600 {
		t.Fatalf("unexpected max age %d", cookie.MaxAge)
	}

	var resp SessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "signed" || resp.Redirect.Path != "/onboarding" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestVerifyOTPFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		status  int
		message string
	}{
		{name: "short code", body: `{"email":"a@b.com","otp":"123"}`, status: http.StatusBadRequest, message: "request payload failed validation"},
		{name: "mismatch", body: `{"email":"a@b.com","otp":"123456"}`, err: domain.ErrOTPMismatch, status: http.StatusUnauthorized, message: "invalid code"},
		{name: "expired", body: `{"email":"a@b.com","otp":"123456"}`, err: domain.ErrOTPExpired, status: http.StatusUnauthorized, message: "code has expired"},
		{name: "unknown user", body: `{"email":"a@b.com","otp":"123456"}`, err: domain.ErrOTPUserNotFound, status: http.StatusUnauthorized, message: "invalid or expired code"},
		{name: "store failure", body: `{"email":"a@b.com","otp":"123456"}`, err: errors.New("db down"), status: http.StatusInternalServerError, message: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter("")
			NewAuthHandler(&fakeAuth{loginErr: tt.err}, CookieSettings{}).RegisterRoutes(r.Group("/auth"), func(c *gin.Context) {})

			rr := serve(r, jsonRequest(http.MethodPost, "/auth/verify-otp", tt.body))
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
			resp := decodeError(t, rr)
			if resp.Error != tt.message {
				t.Fatalf("unexpected message %q", resp.Error)
			}
			if resp.TraceID == "" {
				t.Fatal("error responses must carry the trace id")
			}
			if len(rr.Result().Cookies()) != 0 {
				t.Fatal("failed verification must not set a cookie")
			}
		})
	}
}

func TestLogoutAndMe(t *testing.T) {
	roleID := "role-1"
	auth := &fakeAuth{user: &domain.User{
		ID:             "user-1",
		OnboardingStep: 2,
		AccessRoleID:   &roleID,
		AccessRole:     &domain.Role{ID: roleID, Permissions: []domain.Permission{{Slug: domain.PermUsersView}}},
	}}
	r := newTestRouter("")
	NewAuthHandler(auth, CookieSettings{Name: "jwt"}).RegisterRoutes(r.Group("/auth"), middleware.RequireAuth(auth, "jwt"))

	rr := serve(r, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if cookies := rr.Result().Cookies(); len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("logout must expire the cookie, got %+v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: "valid"})
	rr = serve(r, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var me MeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.User.ID != "user-1" || !slices.Equal(me.Permissions, []string{domain.PermUsersView}) {
		t.Fatalf("unexpected me response: %+v", me)
	}
	if me.Redirect.Path != "/onboarding" {
		t.Fatalf("unexpected redirect %+v", me.Redirect)
	}

	if rr := serve(r, httptest.NewRequest(http.MethodGet, "/auth/me", nil)); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rr.Code)
	}
}

func TestSaveBasicsKeepsTriState(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	rr := serve(r, jsonRequest(http.MethodPost, "/profile/stage-1/basic", `{"legalName":"Ada","address":null,"isComplete":"true"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !profiles.complete {
		t.Fatal("string isComplete must be coerced")
	}
	if !profiles.basics.LegalName.Present() || *profiles.basics.LegalName.Value != "Ada" {
		t.Fatalf("unexpected legal name: %+v", profiles.basics.LegalName)
	}
	if !profiles.basics.Address.Set || profiles.basics.Address.Value != nil {
		t.Fatal("explicit null must be kept as a clear")
	}
	if profiles.basics.PhoneNumber.Set {
		t.Fatal("absent keys must stay unset")
	}

	rr = serve(r, jsonRequest(http.MethodPost, "/profile/stage-1/basic", `{"isComplete":"maybe"}`))
	if rr.Code != http.StatusBadRequest || !slices.Equal(decodeError(t, rr).Fields, []string{"isComplete"}) {
		t.Fatalf("expected isComplete field error, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestUncoercibleValuesNameTheirField(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	tests := []struct {
		path, body, field string
	}{
		{"/profile/stage-2/background", `{"height":"abc"}`, "height"},
		{"/profile/stage-2/background", `{"weight":"12kg"}`, "weight"},
		{"/profile/stage-1/basic", `{"dob":"yesterday"}`, "dob"},
	}
	for _, tt := range tests {
		rr := serve(r, jsonRequest(http.MethodPost, tt.path, tt.body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tt.body, rr.Code)
		}
		resp := decodeError(t, rr)
		if resp.Code != "invalid_value" || !slices.Equal(resp.Fields, []string{tt.field}) {
			t.Fatalf("%s: expected %s to be reported, got %+v", tt.body, tt.field, resp)
		}
	}
}

func TestStageErrorsMapByKind(t *testing.T) {
	profiles := &fakeProfiles{err: domain.ErrIncompleteStage.WithFields("legalName", "dob")}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	rr := serve(r, jsonRequest(http.MethodPost, "/profile/stage-1/basic", `{"isComplete":true}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Code != "stage_incomplete" || !slices.Equal(resp.Fields, []string{"legalName", "dob"}) {
		t.Fatalf("unexpected error body: %+v", resp)
	}

	profiles.err = domain.ErrUserNotFound
	if rr := serve(r, httptest.NewRequest(http.MethodGet, "/profile/stage-3/health", nil)); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestProfileRequiresAuthenticatedUser(t *testing.T) {
	r := newTestRouter("")
	NewProfileHandler(&fakeProfiles{}, 1<<20).RegisterRoutes(r.Group("/profile"))

	if rr := serve(r, jsonRequest(http.MethodPost, "/profile/stage-1/basic", `{}`)); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestUploadPhotosReadsBothParts(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	req := multipartRequest(t, "/profile/stage-1/photos", nil,
		filePart{field: "babyPhoto", name: "baby.png", contentType: "image/png", body: "png"},
	)
	rr := serve(r, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if profiles.baby == nil || profiles.baby.ContentType != "image/png" || profiles.baby.Size != 3 {
		t.Fatalf("unexpected baby upload: %+v", profiles.baby)
	}
	if profiles.current != nil {
		t.Fatal("missing part must be passed as nil")
	}
}

func TestUploadIdentityRejectsOversizedBody(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	handler := NewProfileHandler(profiles, 16)
	handler.maxBodyBytes = 256
	handler.RegisterRoutes(r.Group("/profile"))

	req := multipartRequest(t, "/profile/stage-1/identity", map[string]string{"type": "passport"},
		filePart{field: "document", name: "scan.pdf", contentType: "application/pdf", body: strings.Repeat("x", 1024)},
	)
	rr := serve(r, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if resp := decodeError(t, rr); resp.Code != "file_too_large" {
		t.Fatalf("unexpected error: %+v", resp)
	}
}

func TestUploadIdentityPassesType(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	req := multipartRequest(t, "/profile/stage-1/identity", map[string]string{"type": "PASSPORT"},
		filePart{field: "document", name: "scan.pdf", contentType: "application/pdf", body: "%PDF"},
	)
	rr := serve(r, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if profiles.documentType != domain.DocumentPassport {
		t.Fatalf("unexpected type %q", profiles.documentType)
	}
}

func TestSaveGeneticMultipart(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	req := multipartRequest(t, "/profile/stage-4/genetic",
		map[string]string{"conditions": `["CF","SMA"]`, "isComplete": "true"},
		filePart{field: "report", name: "report.pdf", contentType: "application/pdf", body: "%PDF-1.7"},
	)
	rr := serve(r, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !profiles.complete {
		t.Fatal("isComplete form value must be honoured")
	}
	if got := profiles.genetic.CarrierConditions.Value; got == nil || !slices.Equal(*got, domain.StringList{"CF", "SMA"}) {
		t.Fatalf("unexpected conditions: %v", got)
	}
	if profiles.report == nil || profiles.reportBody != "%PDF-1.7" {
		t.Fatalf("report not forwarded: %+v", profiles.report)
	}
}

func TestSaveGeneticJSONIgnoresClientReportURL(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	rr := serve(r, jsonRequest(http.MethodPost, "/profile/stage-4/genetic", `{"conditions":"[\"CF\"]","reportFileUrl":"https://evil.example/x.pdf"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if profiles.genetic.ReportFileURL.Set {
		t.Fatal("client supplied report URLs must be dropped")
	}
	if got := profiles.genetic.CarrierConditions.Value; got == nil || !slices.Equal(*got, domain.StringList{"CF"}) {
		t.Fatalf("JSON-encoded conditions must be decoded, got %v", got)
	}
}

func TestSubmitLegalRequiresConsent(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	rr := serve(r, jsonRequest(http.MethodPost, "/profile/stage-6/complete", `{"consentAgreed":false}`))
	if rr.Code != http.StatusBadRequest || decodeError(t, rr).Code != "consent_required" {
		t.Fatalf("expected consent error, got %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(r, jsonRequest(http.MethodPost, "/profile/stage-6/complete", `{"consentAgreed":"true","anonymityPreference":"anonymous"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if profiles.legal.AnonymityPreference == nil || *profiles.legal.AnonymityPreference != "anonymous" {
		t.Fatalf("unexpected legal submission: %+v", profiles.legal)
	}
}

func TestUpdateOnboarding(t *testing.T) {
	profiles := &fakeProfiles{}
	r := newTestRouter("user-1")
	NewProfileHandler(profiles, 1<<20).RegisterRoutes(r.Group("/profile"))

	body := `{"gender":"WOMAN","role":"DONOR","serviceType":"DONOR_SERVICES","interestedIn":"EGG","pairingTypes":"[\"OPEN\"]","termsAccepted":true}`
	rr := serve(r, jsonRequest(http.MethodPut, "/profile/onboarding", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	decl := profiles.onboardingDecl
	if decl.Role != domain.MemberRoleDonor || !decl.TermsAccepted || !slices.Equal(decl.PairingTypes, []string{"OPEN"}) {
		t.Fatalf("unexpected declaration: %+v", decl)
	}
}

const memberID = "3f6c1d2e-8b4a-4c1e-9a57-0d2b6e8f1a90"

func TestReviewHandler(t *testing.T) {
	review := &fakeReview{}
	r := newTestRouter("admin-1")
	allow := func(c *gin.Context) { c.Next() }
	NewAdminHandler(review).RegisterRoutes(r.Group("/admin/profile"), allow, allow)

	rr := serve(r, jsonRequest(http.MethodPatch, "/admin/profile/approve/"+memberID, `{"status":"REJECTED","reason":"blurry"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ReviewResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.ID != memberID || resp.ProfileStatus != domain.ProfileStatusRejected || review.reason != "blurry" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rr = serve(r, jsonRequest(http.MethodPatch, "/admin/profile/approve/"+memberID, `{}`))
	if rr.Code != http.StatusBadRequest || !slices.Equal(decodeError(t, rr).Fields, []string{"status"}) {
		t.Fatalf("expected status field error, got %d %s", rr.Code, rr.Body.String())
	}

	review.err = domain.NewForbiddenError(domain.PermProfilesApprove)
	rr = serve(r, jsonRequest(http.MethodPatch, "/admin/profile/approve/"+memberID, `{"status":"ACTIVE"}`))
	if rr.Code != http.StatusForbidden || decodeError(t, rr).Permission != domain.PermProfilesApprove {
		t.Fatalf("expected 403 with slug, got %d %s", rr.Code, rr.Body.String())
	}

	review.err = domain.ErrInvalidTransition
	if rr := serve(r, jsonRequest(http.MethodPatch, "/admin/profile/approve/"+memberID, `{"status":"ACTIVE"}`)); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	review.err = nil
	rr = serve(r, httptest.NewRequest(http.MethodGet, "/admin/profile/pending", nil))
	var pending PendingProfilesResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &pending)
	if rr.Code != http.StatusOK || pending.Results != 0 || pending.Profiles == nil {
		t.Fatalf("empty queue must be an empty list, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestReviewHandlerMalformedUserID(t *testing.T) {
	review := &fakeReview{}
	r := newTestRouter("admin-1")
	allow := func(c *gin.Context) { c.Next() }
	NewAdminHandler(review).RegisterRoutes(r.Group("/admin/profile"), allow, allow)

	rr := serve(r, jsonRequest(http.MethodPatch, "/admin/profile/approve/not-a-uuid", `{"status":"ACTIVE"}`))
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != domain.ErrUserNotFound.Code {
		t.Fatalf("expected 404 user_not_found, got %d %s", rr.Code, rr.Body.String())
	}
	if review.target != "" {
		t.Fatal("malformed id must not reach the review service")
	}
}

type fakeRBAC struct {
	RBACUsecase
	assignedUser string
	deletedRole  string
}

func (f *fakeRBAC) AssignRole(ctx context.Context, actorID, userID, roleName string) (*domain.User, error) {
	f.assignedUser = userID
	return &domain.User{ID: userID}, nil
}

func (f *fakeRBAC) DeleteRole(ctx context.Context, actorID, roleID string) error {
	f.deletedRole = roleID
	return nil
}

func TestRoleHandlerRejectsMalformedIDs(t *testing.T) {
	rbac := &fakeRBAC{}
	r := newTestRouter("admin-1")
	NewRoleHandler(rbac).RegisterRoutes(r.Group("/rbac"))

	rr := serve(r, httptest.NewRequest(http.MethodDelete, "/rbac/roles/42", nil))
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != domain.ErrRoleNotFound.Code {
		t.Fatalf("expected 404 role_not_found, got %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(r, jsonRequest(http.MethodPost, "/rbac/assign", `{"userId":"not-a-uuid","roleName":"Moderator"}`))
	if rr.Code != http.StatusBadRequest || !slices.Equal(decodeError(t, rr).Fields, []string{"userId"}) {
		t.Fatalf("expected userId field error, got %d %s", rr.Code, rr.Body.String())
	}
	if rbac.assignedUser != "" || rbac.deletedRole != "" {
		t.Fatal("malformed ids must not reach the service")
	}

	if rr := serve(r, jsonRequest(http.MethodPost, "/rbac/assign", `{"userId":"`+memberID+`","roleName":"Moderator"}`)); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	if rr := serve(r, httptest.NewRequest(http.MethodDelete, "/rbac/roles/"+memberID, nil)); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rbac.assignedUser != memberID || rbac.deletedRole != memberID {
		t.Fatalf("valid ids must pass through: %q %q", rbac.assignedUser, rbac.deletedRole)
	}
}

func TestReadiness(t *testing.T) {
	r := newTestRouter("")
	h := NewHealthHandler(
		WithReadinessCheck("database", func(ctx context.Context) error { return nil }),
		WithReadinessCheck("redis", func(ctx context.Context) error { return errors.New("down") }),
	)
	r.GET("/readyz", h.Readiness)

	rr := serve(r, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp ReadinessResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Checks["database"] != "ok" || resp.Checks["redis"] != "unavailable" {
		t.Fatalf("unexpected checks: %+v", resp.Checks)
	}
}
