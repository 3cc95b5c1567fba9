package locale

import (
	"testing"
	"time"
)

func TestFormatDate(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		loc  *time.Location
		want string
	}{
		{"morning slot", time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), time.UTC, "dia 10 de janeiro, às 10:00h"},
		{"single digit hour and day", time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC), nil, "dia 05 de março, às 9:30h"},
		{"midnight", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), time.UTC, "dia 31 de dezembro, às 0:00h"},
		{"converted to zone", time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC), time.FixedZone("BRT", -3*60*60), "dia 10 de janeiro, às 10:00h"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatDate(tc.in, tc.loc); got != tc.want {
				t.Fatalf("FormatDate = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMonthName(t *testing.T) {
	if MonthName(0) != "" || MonthName(13) != "" {
		t.Fatalf("expected empty name for invalid months")
	}
	want := []string{"janeiro", "fevereiro", "março", "abril", "maio", "junho",
		"julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}
	for i, name := range want {
		if got := MonthName(time.Month(i + 1)); got != name {
			t.Fatalf("MonthName(%d) = %q, want %q", i+1, got, name)
		}
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	if err != nil || loc != time.UTC {
		t.Fatalf("empty name should give UTC, got %v %v", loc, err)
	}
	if _, err := LoadLocation("Not/AZone"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}
