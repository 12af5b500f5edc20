package sqlguard

import (
	"strings"
	"testing"
)

func TestValidateRejectsNonSelect(t *testing.T) {
	v := NewValidator()
	inputs := []string{
		"",
		"   ",
		"DROP TABLE product_template;",
		"with x as (select 1) select * from x",
		"explain select 1",
		"selection",
		"(select 1)",
		"-- note\nselect 1",
		"show tables",
	}
	for _, in := range inputs {
		verdict := v.Validate(in)
		if verdict.Allowed {
			t.Fatalf("Validate(%q) allowed", in)
		}
		if verdict.Reason == "" {
			t.Fatalf("Validate(%q) reason is empty", in)
		}
		if !verdict.Query.IsZero() {
			t.Fatalf("Validate(%q) returned query %q on rejection", in, verdict.Query.SQL())
		}
	}
}

func TestValidateRejectsDenyListedTokens(t *testing.T) {
	v := NewValidator()
	inputs := []string{
		"select 1; drop table x",
		"SELECT * FROM stock_quant;DELETE FROM stock_quant",
		"select * from t where x = 'a' or 1=1; update t set a = 1",
		"select (insert) from t",
		"select 1 -- truncate later",
		"select * from t /* grant all */",
		"select * from t where name = 'alter'",
		"Select REVOKE",
		"select create from t",
	}
	for _, in := range inputs {
		verdict := v.Validate(in)
		if verdict.Allowed {
			t.Fatalf("Validate(%q) allowed", in)
		}
		if !strings.Contains(verdict.Reason, "forbidden keyword") {
			t.Fatalf("Validate(%q) reason = %q", in, verdict.Reason)
		}
	}
}

func TestValidateRejectsDenyWordsInsideIdentifiers(t *testing.T) {
	v := NewValidator()
	inputs := []string{
		"select 1 from x_drop",
		"select create_date, write_date from product_template",
		"select name from product_template where archived = false or drop_x is null",
	}
	for _, in := range inputs {
		if verdict := v.Validate(in); verdict.Allowed {
			t.Fatalf("Validate(%q) allowed, want rejection", in)
		}
	}
}

func TestValidateAllowsUnderscoreIdentifiers(t *testing.T) {
	v := NewValidator()
	inputs := []string{
		"select pt.name, sq.quantity from stock_quant sq join product_template pt on pt.id = sq.product_id",
		"select * from dropship",
	}
	for _, in := range inputs {
		if verdict := v.Validate(in); !verdict.Allowed {
			t.Fatalf("Validate(%q) rejected: %s", in, verdict.Reason)
		}
	}
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	v := NewValidator()
	inputs := []string{
		"select 1; select 2",
		"select 1;\n\nselect pg_sleep(10)",
		"select 'x\\'; select pg_sleep(10); --'",
		"select 1; /* c */ select 2",
	}
	for _, in := range inputs {
		verdict := v.Validate(in)
		if verdict.Allowed {
			t.Fatalf("Validate(%q) allowed", in)
		}
		if !strings.Contains(verdict.Reason, "more than one statement") {
			t.Fatalf("Validate(%q) reason = %q", in, verdict.Reason)
		}
	}
}

func TestValidateAcceptsSingleSelect(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		in   string
		want string
	}{
		{in: "select 1", want: "select 1"},
		{in: "  SELECT name->>'es_ES' FROM product_template LIMIT 50;  ", want: "SELECT name->>'es_ES' FROM product_template LIMIT 50"},
		{in: "select 1;;;", want: "select 1"},
		{in: "select 1; -- done", want: "select 1"},
		{in: "select ';' as sep", want: "select ';' as sep"},
		{in: `select "a;b" from t`, want: `select "a;b" from t`},
		{in: "select $$a;b$$", want: "select $$a;b$$"},
		{in: "select $tag$ ; $tag$ as x", want: "select $tag$ ; $tag$ as x"},
		{in: "select * from t where id = $1", want: "select * from t where id = $1"},
		{in: "select 'it''s; fine'", want: "select 'it''s; fine'"},
		{in: "select 1 /* a; /* nested; */ b; */", want: "select 1 /* a; /* nested; */ b; */"},
	}
	for _, tt := range tests {
		verdict := v.Validate(tt.in)
		if !verdict.Allowed {
			t.Fatalf("Validate(%q) rejected: %s", tt.in, verdict.Reason)
		}
		if got := verdict.Query.SQL(); got != tt.want {
			t.Fatalf("Validate(%q).Query = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateExtraDenyKeywords(t *testing.T) {
	v := NewValidator("COPY", " ")
	if verdict := v.Validate("select copy from t"); verdict.Allowed {
		t.Fatal("Validate() allowed extra deny keyword")
	}
	if verdict := v.Validate("select 1; drop table x"); verdict.Allowed {
		t.Fatal("extra keywords must not replace the default deny-list")
	}
	if verdict := NewValidator().Validate("select copy from t"); !verdict.Allowed {
		t.Fatalf("default validator rejected: %s", verdict.Reason)
	}
}

func TestValidateNeverPanics(t *testing.T) {
	v := NewValidator()
	inputs := []string{
		"select '",
		"select \"",
		"select /*",
		"select $",
		"select $a",
		"select $a$",
		"select --",
		"select \x00\xff\xfe",
		"select ;",
		strings.Repeat("select ", 1000),
	}
	for _, in := range inputs {
		_ = v.Validate(in)
	}
}

func TestZeroValidated(t *testing.T) {
	var q Validated
	if !q.IsZero() || q.SQL() != "" {
		t.Fatalf("zero Validated = %q", q.SQL())
	}
}
