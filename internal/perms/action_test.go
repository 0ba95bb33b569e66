package perms

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestActionFilterMatches(t *testing.T) {
	actor := uuid.New()
	target := uuid.New()

	userAction := Action{
		Timestamp:   time.Unix(100, 0),
		Source:      ActionSource{UniqueID: actor, Name: "Console"},
		Target:      ActionTarget{UniqueID: &target, Name: "Steve", Type: TargetUser},
		Description: "permission set fly true",
	}
	groupAction := Action{
		Source:      ActionSource{UniqueID: actor, Name: "Console"},
		Target:      ActionTarget{Name: "admin", Type: TargetGroup},
		Description: "meta set rank 1",
	}

	tests := []struct {
		name   string
		filter ActionFilter
		action Action
		want   bool
	}{
		{"any", AnyAction(), groupAction, true},
		{"source", ActionsBySource(actor), userAction, true},
		{"other source", ActionsBySource(target), userAction, false},
		{"user", ActionsOnUser(target), userAction, true},
		{"user on group action", ActionsOnUser(target), groupAction, false},
		{"group case", ActionsOnGroup("ADMIN"), groupAction, true},
		{"track on group action", ActionsOnTrack("admin"), groupAction, false},
		{"search description", ActionsMatching("FLY"), userAction, true},
		{"search target", ActionsMatching("stev"), userAction, true},
		{"search miss", ActionsMatching("nope"), groupAction, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.action); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPromotionResultSuccess(t *testing.T) {
	if !(PromotionResult{Status: PromotionAddedToFirstGroup}).Success() {
		t.Error("added_to_first_group is not a success")
	}
	if (PromotionResult{Status: PromotionEndOfTrack}).Success() {
		t.Error("end_of_track is a success")
	}
	if !(DemotionResult{Status: DemotionRemovedFromFirstGroup}).Success() {
		t.Error("removed_from_first_group is not a success")
	}
}

func TestNormalizeName(t *testing.T) {
	if got, err := NormalizeName(" Admin "); err != nil || got != "admin" {
		t.Errorf("NormalizeName() = %q, %v", got, err)
	}
	for _, bad := range []string{"", "has space", "dots.not.allowed"} {
		if _, err := NormalizeName(bad); err == nil {
			t.Errorf("NormalizeName(%q) accepted", bad)
		}
	}
}
