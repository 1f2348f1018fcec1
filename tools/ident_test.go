package tools

import "testing"

func TestNameSplit(t *testing.T) {
	cases := []struct {
		name    Name
		wantExt string
		wantLoc string
		wantOK  bool
	}{
		{"developer__text_editor", "developer", "text_editor", true},
		{"platform__read_resource", "platform", "read_resource", true},
		{"nope", "", "", false},
		{"a__b__c", "a", "b__c", true},
	}
	for _, c := range cases {
		ext, local, ok := c.name.Split()
		if ok != c.wantOK || ext != c.wantExt || local != c.wantLoc {
			t.Errorf("Split(%q) = (%q, %q, %v), want (%q, %q, %v)", c.name, ext, local, ok, c.wantExt, c.wantLoc, c.wantOK)
		}
	}
}

func TestIsPlatform(t *testing.T) {
	if !Name("platform__enable_extension").IsPlatform() {
		t.Error("expected platform__enable_extension to be a platform tool")
	}
	if Name("developer__shell").IsPlatform() {
		t.Error("did not expect developer__shell to be a platform tool")
	}
}

func TestValidLocalName(t *testing.T) {
	if !ValidLocalName("shell") {
		t.Error("expected shell to be valid")
	}
	if ValidLocalName("") {
		t.Error("expected empty name to be invalid")
	}
	if ValidLocalName("a__b") {
		t.Error("expected name containing separator to be invalid")
	}
}
