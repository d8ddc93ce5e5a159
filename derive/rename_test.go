package derive

import "testing"

func TestRenameRule_Apply(t *testing.T) {
	tests := []struct {
		rule RenameRule
		in   string
		want string
	}{
		{RenameLowercase, "HostName", "hostname"},
		{RenameUppercase, "HostName", "HOSTNAME"},
		{RenamePascalCase, "host_name", "HostName"},
		{RenameCamelCase, "HostName", "hostName"},
		{RenameCamelCase, "host-name", "hostName"},
		{RenameSnakeCase, "HostName", "host_name"},
		{RenameSnakeCase, "HTTPServer", "http_server"},
		{RenameSnakeCase, "UserID", "user_id"},
		{RenameSnakeCase, "Field2Name", "field2_name"},
		{RenameScreamingSnakeCase, "maxConns", "MAX_CONNS"},
		{RenameKebabCase, "MaxConns", "max-conns"},
		{RenameScreamingKebabCase, "max_conns", "MAX-CONNS"},
		{RenamePassthrough, "Keep_Me", "Keep_Me"},
	}
	for _, tt := range tests {
		t.Run(string(tt.rule)+"/"+tt.in, func(t *testing.T) {
			if got := tt.rule.Apply(tt.in); got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRenameRule(t *testing.T) {
	if r, ok := ParseRenameRule("snake_case"); !ok || r != RenameSnakeCase {
		t.Errorf("ParseRenameRule(snake_case) = %q, %v", r, ok)
	}
	if _, ok := ParseRenameRule("Snake"); ok {
		t.Error("unknown rule should not parse")
	}
}
