package config

import (
	"reflect"
	"strings"
	"testing"
)

const validYAML = `
server:
  port: 8500
db:
  database: scanmark_demo
marking:
  quota: 50
  stale_claim_ttl_minutes: 120
  questions:
    - index: 1
      label: Algebra
      pages: [2, 3]
    - index: 2
      pages: [4]
notify:
  slack:
    bot_token: xoxb-test
    channel: "#marking"
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Server.Port != 8500 {
		t.Errorf("Server.Port = %d, want 8500", cfg.Server.Port)
	}
	if cfg.DB.Database != "scanmark_demo" {
		t.Errorf("DB.Database = %q, want scanmark_demo", cfg.DB.Database)
	}
	if cfg.Marking.Quota != 50 {
		t.Errorf("Marking.Quota = %d, want 50", cfg.Marking.Quota)
	}
	if len(cfg.Marking.Questions) != 2 {
		t.Fatalf("len(Questions) = %d, want 2", len(cfg.Marking.Questions))
	}
	if cfg.Notify.Slack.Channel != "#marking" {
		t.Errorf("Notify.Slack.Channel = %q", cfg.Notify.Slack.Channel)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("marking:\n  questions:\n    - index: 1\n      pages: [1]\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 41984 {
		t.Errorf("Server.Port = %d, want 41984", cfg.Server.Port)
	}
	if cfg.DB.Host != "127.0.0.1" || cfg.DB.Port != 3306 {
		t.Errorf("DB defaults = %s:%d", cfg.DB.Host, cfg.DB.Port)
	}
	if cfg.DB.User != "scanmark" {
		t.Errorf("DB.User default = %q, want scanmark", cfg.DB.User)
	}
	if cfg.DB.Database != "scanmark" {
		t.Errorf("DB.Database = %q, want scanmark", cfg.DB.Database)
	}
	if cfg.Marking.SweepCron != "*/10 * * * *" {
		t.Errorf("SweepCron = %q", cfg.Marking.SweepCron)
	}
	if cfg.Marking.Questions[0].Label != "Q1" {
		t.Errorf("question label default = %q, want Q1", cfg.Marking.Questions[0].Label)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{"no questions", "server:\n  port: 1\n", "at least one marking question"},
		{"zero index", "marking:\n  questions:\n    - index: 0\n      pages: [1]\n", "must be positive"},
		{"duplicate index", "marking:\n  questions:\n    - index: 1\n      pages: [1]\n    - index: 1\n      pages: [2]\n", "duplicated"},
		{"no pages", "marking:\n  questions:\n    - index: 1\n", "pages is required"},
		{"negative quota", "marking:\n  quota: -1\n  questions:\n    - index: 1\n      pages: [1]\n", "quota"},
		{"bad yaml", ":\n  - not yaml", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() = nil error, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q missing %q", err, tt.wantSub)
			}
		})
	}
}

func TestQuestionsForPage(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	tests := []struct {
		page int
		want []int
	}{
		{2, []int{1}},
		{3, []int{1}},
		{4, []int{2}},
		{9, nil},
	}
	for _, tt := range tests {
		if got := cfg.QuestionsForPage(tt.page); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("QuestionsForPage(%d) = %v, want %v", tt.page, got, tt.want)
		}
	}
}

func TestHasQuestion(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !cfg.HasQuestion(1) || !cfg.HasQuestion(2) {
		t.Error("HasQuestion missing defined questions")
	}
	if cfg.HasQuestion(3) {
		t.Error("HasQuestion(3) = true for undefined question")
	}
}
