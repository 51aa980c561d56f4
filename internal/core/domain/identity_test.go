package domain

import "testing"

func strp(s string) *string { return &s }

func TestIdentity_Merge_OnlyTouchesGivenFields(t *testing.T) {
	base := &Identity{
		ID:            "7",
		Email:         "ana@clinic.test",
		Role:          RoleProfessional,
		FirstName:     "Ana",
		LastName:      "Souza",
		HealthProfile: &HealthProfile{Specialty: "nursing", CouncilNumber: "COREN-1"},
		SessionExpiry: ExpiryPersistent,
	}

	got := base.Merge(IdentityPatch{LastName: strp("X")})

	if got.LastName != "X" {
		t.Fatalf("expected last name X, got %q", got.LastName)
	}
	want := base.Clone()
	want.LastName = "X"
	if *got.HealthProfile != *want.HealthProfile {
		t.Errorf("health profile changed: %+v", got.HealthProfile)
	}
	got.HealthProfile = nil
	want.HealthProfile = nil
	if *got != *want {
		t.Errorf("unexpected merge result:\n got %+v\nwant %+v", got, want)
	}
	if base.LastName != "Souza" {
		t.Errorf("merge mutated receiver")
	}
}

func TestIdentity_Clone_DeepCopiesHealthProfile(t *testing.T) {
	base := &Identity{ID: "1", Role: RoleProfessional, HealthProfile: &HealthProfile{Specialty: "a"}}
	c := base.Clone()
	c.HealthProfile.Specialty = "b"
	if base.HealthProfile.Specialty != "a" {
		t.Fatalf("clone shares health profile")
	}
	var nilID *Identity
	if nilID.Clone() != nil {
		t.Fatalf("expected nil clone of nil identity")
	}
}

func TestSessionState_Projections(t *testing.T) {
	var empty SessionState
	if empty.IsAuthenticated() || empty.Role() != "" || empty.MustChangePassword() {
		t.Fatalf("empty state must be unauthenticated: %+v", empty)
	}

	st := SessionState{Identity: &Identity{ID: "1", Role: RoleManager, MustChangePassword: true}}
	if !st.IsAuthenticated() || st.Role() != RoleManager || !st.MustChangePassword() {
		t.Fatalf("unexpected projections for %+v", st.Identity)
	}
}

func TestCapability_Permits(t *testing.T) {
	adminOnly := RequireRoles(RoleAdmin)
	if !adminOnly.Permits(RoleAdmin) {
		t.Errorf("admin should be permitted")
	}
	if adminOnly.Permits(RoleManager) {
		t.Errorf("manager should not be permitted")
	}
	if !Authenticated().Permits(RoleManager) {
		t.Errorf("authenticated capability names no roles")
	}
}

func TestDashboardFor(t *testing.T) {
	cases := map[Role]RouteName{
		RoleAdmin:        RouteAdminDashboard,
		RoleManager:      RouteManagerDashboard,
		RoleProfessional: RouteHealthDashboard,
	}
	for role, want := range cases {
		got, ok := DashboardFor(role)
		if !ok || got != want {
			t.Errorf("DashboardFor(%s) = %s, %v", role, got, ok)
		}
	}
	if _, ok := DashboardFor("student"); ok {
		t.Errorf("unknown role must not map to a dashboard")
	}
}

func TestUser_Identity_HidesProfileForOtherRoles(t *testing.T) {
	u := &User{ID: "1", Role: RoleManager, HealthProfile: &HealthProfile{Specialty: "x"}}
	if u.Identity(ExpiryBrowserClose).HealthProfile != nil {
		t.Fatalf("manager identity must not carry a health profile")
	}
	u.Role = RoleProfessional
	if id := u.Identity(ExpiryBrowserClose); id.HealthProfile == nil || id.SessionExpiry != ExpiryBrowserClose {
		t.Fatalf("unexpected professional identity: %+v", id)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Fields: map[string][]string{
		"confirm_password": {"passwords do not match"},
		"new_password":     {"too short"},
	}}
	want := "confirm_password: passwords do not match; new_password: too short"
	if err.Error() != want {
		t.Fatalf("got %q", err.Error())
	}
	if err.Field("new_password") != "too short" || err.Field("missing") != "" {
		t.Fatalf("unexpected Field lookups")
	}
}
