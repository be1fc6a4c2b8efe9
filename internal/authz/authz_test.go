package authz

import "testing"

func TestDecide(t *testing.T) {
	owner := Actor{UserID: 1}
	other := Actor{UserID: 2}
	admin := Actor{UserID: 3, IsSuperuser: true}
	anon := Actor{}
	rating := Owned("rating", 1)
	movie := Resource{Kind: "movie"}

	tests := []struct {
		name   string
		actor  Actor
		action Action
		res    Resource
		want   bool
	}{
		{"anonymous read", anon, ActionRead, movie, false},
		{"anonymous create", anon, ActionCreate, rating, false},
		{"user read", other, ActionRead, rating, true},
		{"user create", other, ActionCreate, rating, true},
		{"owner update", owner, ActionUpdate, rating, true},
		{"other update", other, ActionUpdate, rating, false},
		{"admin update not owner", admin, ActionUpdate, rating, false},
		{"owner delete", owner, ActionDelete, rating, true},
		{"other delete", other, ActionDelete, rating, false},
		{"admin delete", admin, ActionDelete, rating, true},
		{"user admin", owner, ActionAdmin, movie, false},
		{"admin admin", admin, ActionAdmin, movie, true},
		{"unowned update", owner, ActionUpdate, movie, false},
		{"unknown action", owner, Action(99), movie, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.actor, tt.action, tt.res)
			if got.Allowed != tt.want {
				t.Fatalf("Decide(%+v, %v, %+v) = %+v, want allowed=%v", tt.actor, tt.action, tt.res, got, tt.want)
			}
			if !got.Allowed && got.Reason == "" {
				t.Fatalf("denial without reason")
			}
		})
	}
}
