package models

import "testing"

func TestDisplayNameFor(t *testing.T) {
	cases := []struct {
		name string
		user *User
		want string
	}{
		{"nil user", nil, ""},
		{"buyer", &User{Name: "Ann", Role: RoleBuyer}, "Ann"},
		{"streamer with shop", &User{Name: "Sam", Role: RoleStreamer, ShopName: "Sam's Shop"}, "Sam's Shop"},
		{"streamer without shop", &User{Name: "Sam", Role: RoleStreamer}, "Sam"},
		{"buyer with stale shop name", &User{Name: "Ann", Role: RoleBuyer, ShopName: "Old Shop"}, "Ann"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DisplayNameFor(tc.user); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConversationMembership(t *testing.T) {
	c := &Conversation{ID: "conv-1", Members: []string{"u-ann", "u-bob"}}
	if !c.HasMember("u-ann") || !c.HasMember("u-bob") {
		t.Error("members not recognized")
	}
	if c.HasMember("u-eve") {
		t.Error("non-member recognized")
	}
	if got := c.OtherMember("u-ann"); got != "u-bob" {
		t.Errorf("OtherMember = %q", got)
	}

	group := &Conversation{Members: []string{"a", "b", "c"}}
	if got := group.OtherMember("a"); got != "" {
		t.Errorf("OtherMember on non-direct conversation = %q", got)
	}
}
