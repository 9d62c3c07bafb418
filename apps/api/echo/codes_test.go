package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/trezcool/jumuiya/core/directory"
	"github.com/trezcool/jumuiya/core/invitation"
	"github.com/trezcool/jumuiya/core/user"
	"github.com/trezcool/jumuiya/tests"
)

type groupFixture struct {
	head, teacher, student, parent user.User
	family                         directory.Family
	classroom                      directory.Classroom
}

func newGroupFixture(t *testing.T) groupFixture {
	reset()

	var f groupFixture
	f.head = testutil.CreateUser(t, usrRepo, "Baba", "baba", "baba@test.cd", "", user.AccountParent, true)
	f.teacher = testutil.CreateUser(t, usrRepo, "Mwalimu", "mwalimu", "mwalimu@test.cd", "", user.AccountTeacher, true)
	f.student = testutil.CreateUser(t, usrRepo, "Mtoto", "mtoto", "mtoto@test.cd", "", user.AccountStudent, true)
	f.parent = testutil.CreateUser(t, usrRepo, "Mama", "mama", "mama@test.cd", "", user.AccountParent, true)
	f.family = testutil.CreateFamily(t, dirRepo, "Famille Baba", f.head.ID)
	f.classroom = testutil.CreateClassroom(t, dirRepo, "6A", f.teacher.ID)
	return f
}

func createCode(t *testing.T, actor user.User, nc invitation.NewCode) invitation.Summary {
	t.Helper()

	rec := do(http.MethodPost, "/v1/codes", getToken(t, actor), marchallObj(t, nc))
	if rec.Code != http.StatusCreated {
		t.Fatalf("createCode(): code = %v; body %s", rec.Code, rec.Body.String())
	}
	var sum invitation.Summary
	unmarshall(t, rec, &sum)
	return sum
}

func Test_codeApi_create(t *testing.T) {
	f := newGroupFixture(t)
	errForbidden := marchallObj(t, httpErr{Error: "you are not allowed to manage this group"})

	t.Run("classroom code", func(t *testing.T) {
		sum := createCode(t, f.teacher, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: f.classroom.ID})
		if sum.Status != invitation.StatusActive || len(sum.Code.Code) != conf.Invitations.CodeLength {
			t.Errorf("failed! summary = %+v", sum)
		}
		if sum.CreatedBy != f.teacher.ID || sum.TargetID != f.classroom.ID {
			t.Errorf("failed! summary = %+v", sum)
		}
	})

	t.Run("custom family code", func(t *testing.T) {
		two := 2
		sum := createCode(t, f.head, invitation.NewCode{
			TargetType: directory.TargetFamily,
			TargetID:   f.family.ID,
			Code:       "fam-ab12cd-ef34gh",
			MaxUses:    &two,
		})
		if sum.Code.Code != "FAM-AB12CD-EF34GH" {
			t.Errorf("failed! code = %q", sum.Code.Code)
		}
	})

	tests := []httpTest{
		{name: "no token", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name:     "invalid data",
			token:    getToken(t, f.teacher),
			body:     []byte(`{"target_type": "school", "target_id": "lol"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "not the family head",
			token:    getToken(t, f.teacher),
			body:     marchallObj(t, invitation.NewCode{TargetType: directory.TargetFamily, TargetID: f.family.ID}),
			wantCode: http.StatusForbidden,
			wantData: errForbidden,
		},
		{
			name:     "unknown classroom",
			token:    getToken(t, f.teacher),
			body:     marchallObj(t, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: uuid.New().String()}),
			wantCode: http.StatusForbidden,
			wantData: errForbidden,
		},
		{
			name:     "code taken",
			token:    getToken(t, f.head),
			body:     marchallObj(t, invitation.NewCode{TargetType: directory.TargetFamily, TargetID: f.family.ID, Code: "FAM-AB12CD-EF34GH"}),
			wantCode: http.StatusBadRequest,
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/codes"
	}
	runHTTPTests(t, tests)
}

func Test_codeApi_retrieveAndList(t *testing.T) {
	f := newGroupFixture(t)

	clsCode := createCode(t, f.teacher, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: f.classroom.ID})
	famCode := createCode(t, f.head, invitation.NewCode{TargetType: directory.TargetFamily, TargetID: f.family.ID})

	t.Run("anyone may look a code up", func(t *testing.T) {
		rec := do(http.MethodGet, "/v1/codes/"+clsCode.Code.Code, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
		}
		var sum invitation.Summary
		unmarshall(t, rec, &sum)
		if sum.ID != clsCode.ID || sum.UsageCount != 0 || sum.Status != invitation.StatusActive {
			t.Errorf("failed! summary = %+v", sum)
		}
	})

	runHTTPTests(t, []httpTest{
		{
			name:     "unknown code",
			method:   http.MethodGet,
			path:     "/v1/codes/NOPE1234",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "code not found"}),
		},
		{
			name:     "bad target type filter",
			method:   http.MethodGet,
			path:     "/v1/codes/mine?target_type=school",
			token:    getToken(t, f.head),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "my codes need a token",
			method:   http.MethodGet,
			path:     "/v1/codes/mine",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{name: "no codes", method: http.MethodGet, path: "/v1/codes/mine", token: getToken(t, f.student), wantData: []byte("[]")},
		{name: "no classroom codes", method: http.MethodGet, path: "/v1/codes/mine?target_type=classroom", token: getToken(t, f.head), wantData: []byte("[]")},
	})

	t.Run("my codes", func(t *testing.T) {
		rec := do(http.MethodGet, "/v1/codes/mine?target_type=FAMILY", getToken(t, f.head))
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; wantCode %v", rec.Code, http.StatusOK)
		}
		var codes []invitation.Summary
		unmarshall(t, rec, &codes)
		if len(codes) != 1 || codes[0].ID != famCode.ID {
			t.Errorf("failed! codes = %+v", codes)
		}
	})
}

func Test_codeApi_revoke(t *testing.T) {
	f := newGroupFixture(t)

	byValue := createCode(t, f.teacher, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: f.classroom.ID})
	byID := createCode(t, f.teacher, invitation.NewCode{TargetType: directory.TargetClassroom, TargetID: f.classroom.ID})

	runHTTPTests(t, []httpTest{
		{
			name:     "not allowed",
			method:   http.MethodDelete,
			path:     "/v1/codes/" + byValue.Code.Code,
			token:    getToken(t, f.head),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown code",
			method:   http.MethodDelete,
			path:     "/v1/codes/" + uuid.New().String(),
			token:    getToken(t, f.teacher),
			wantCode: http.StatusNotFound,
		},
	})

	for name, ref := range map[string]string{"by value": byValue.Code.Code, "by id": byID.ID} {
		t.Run(name, func(t *testing.T) {
			rec := do(http.MethodDelete, "/v1/codes/"+ref, getToken(t, f.teacher))
			if rec.Code != http.StatusOK {
				t.Fatalf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
			}
			var sum invitation.Summary
			unmarshall(t, rec, &sum)
			if sum.Status != invitation.StatusExpired || sum.RevokedAt == nil {
				t.Errorf("failed! summary = %+v", sum)
			}
		})
	}

	t.Run("revoked codes cannot be redeemed", func(t *testing.T) {
		rec := do(http.MethodPost, "/v1/requests/redeem", getToken(t, f.student), []byte(`{"code": "`+byValue.Code.Code+`"}`))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "code expired"})}, rec)
	})
}
