package window

import (
	"testing"
	"time"
)

// The deployment zone used throughout: UTC+9.
const kst = 9 * 3600

// localTime builds the UTC instant of the given local wall-clock time.
func localTime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC).Add(-time.Duration(kst) * time.Second)
}

func TestResolveDaytimeWindowBoundaries(t *testing.T) {
	// 09:00–18:00 local.
	start, end := 9*3600, 18*3600

	tests := []struct {
		name     string
		commit   time.Time
		accepted bool
		date     string
	}{
		{"exactly at window start", localTime(2024, 5, 1, 9, 0), true, "2024-05-01"},
		{"exactly at window end", localTime(2024, 5, 1, 18, 0), true, "2024-05-01"},
		{"one second before start", localTime(2024, 5, 1, 9, 0).Add(-time.Second), false, ""},
		{"one second after end", localTime(2024, 5, 1, 18, 0).Add(time.Second), false, ""},
		{"mid-window", localTime(2024, 5, 1, 13, 30), true, "2024-05-01"},
		{"late night same day", localTime(2024, 5, 1, 23, 0), false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, ok := Resolve(tc.commit, start, end, kst)
			if ok != tc.accepted {
				t.Fatalf("accepted = %v, want %v", ok, tc.accepted)
			}
			if ok && res.CalendarDate != tc.date {
				t.Errorf("calendar date = %s, want %s", res.CalendarDate, tc.date)
			}
		})
	}
}

func TestResolveOvernightWindow(t *testing.T) {
	// 22:00 through 02:00 the next day.
	start, end := 79200, 93600

	tests := []struct {
		name     string
		commit   time.Time
		accepted bool
		date     string
	}{
		{"before midnight belongs to same date", localTime(2024, 5, 1, 23, 30), true, "2024-05-01"},
		{"after midnight belongs to previous date", localTime(2024, 5, 2, 1, 30), true, "2024-05-01"},
		{"exactly at midnight", localTime(2024, 5, 2, 0, 0), true, "2024-05-01"},
		{"exactly at overnight end", localTime(2024, 5, 2, 2, 0), true, "2024-05-01"},
		{"past overnight end", localTime(2024, 5, 2, 2, 1), false, ""},
		{"before window opens", localTime(2024, 5, 1, 21, 59), false, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, ok := Resolve(tc.commit, start, end, kst)
			if ok != tc.accepted {
				t.Fatalf("accepted = %v, want %v", ok, tc.accepted)
			}
			if ok && res.CalendarDate != tc.date {
				t.Errorf("calendar date = %s, want %s", res.CalendarDate, tc.date)
			}
		})
	}
}

func TestResolveElevenToOneScenario(t *testing.T) {
	// 11:00–01:00 local, the longest window deployed in practice.
	start, end := 39600, 90000

	first, ok := Resolve(localTime(2024, 5, 1, 23, 50), start, end, kst)
	if !ok {
		t.Fatal("23:50 commit should be accepted")
	}
	if first.CalendarDate != "2024-05-01" {
		t.Fatalf("23:50 commit resolved to %s, want 2024-05-01", first.CalendarDate)
	}

	second, ok := Resolve(localTime(2024, 5, 2, 0, 40), start, end, kst)
	if !ok {
		t.Fatal("00:40 commit should be accepted")
	}
	if second.CalendarDate != "2024-05-01" {
		t.Fatalf("00:40 commit resolved to %s, want 2024-05-01 (window started the day before)", second.CalendarDate)
	}
	if !second.MidnightUTC.Equal(first.MidnightUTC) {
		t.Error("both commits should resolve to the same session midnight")
	}

	if _, ok := Resolve(localTime(2024, 5, 2, 2, 0), start, end, kst); ok {
		t.Error("02:00 commit is past the window end and should be rejected")
	}
}

func TestResolveWindowBounds(t *testing.T) {
	res, ok := Resolve(localTime(2024, 5, 1, 12, 0), 39600, 90000, kst)
	if !ok {
		t.Fatal("noon commit should be accepted")
	}

	wantMidnight := time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC) // 2024-05-01 00:00 KST
	if !res.MidnightUTC.Equal(wantMidnight) {
		t.Errorf("midnight UTC = %v, want %v", res.MidnightUTC, wantMidnight)
	}
	if !res.WindowStartUTC.Equal(wantMidnight.Add(39600 * time.Second)) {
		t.Errorf("window start = %v", res.WindowStartUTC)
	}
	if !res.WindowEndUTC.Equal(wantMidnight.Add(90000 * time.Second)) {
		t.Errorf("window end = %v", res.WindowEndUTC)
	}
}

func TestMidnightUTCRoundTrip(t *testing.T) {
	res, ok := Resolve(localTime(2024, 5, 2, 0, 40), 39600, 90000, kst)
	if !ok {
		t.Fatal("commit should be accepted")
	}

	midnight, err := MidnightUTC(res.CalendarDate, kst)
	if err != nil {
		t.Fatalf("MidnightUTC: %v", err)
	}
	if !midnight.Equal(res.MidnightUTC) {
		t.Errorf("recomputed midnight %v differs from resolved %v", midnight, res.MidnightUTC)
	}
}

func TestValidateOffsets(t *testing.T) {
	tests := []struct {
		name    string
		start   int
		end     int
		wantErr bool
	}{
		{"ordinary daytime window", 32400, 64800, false},
		{"overnight window", 79200, 93600, false},
		{"negative start", -1, 3600, true},
		{"start at full day", 86400, 90000, true},
		{"end equals start", 3600, 3600, true},
		{"end before start", 7200, 3600, true},
		{"exactly 24 hours", 3600, 90000, true},
		{"just under 24 hours", 3600, 89999, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateOffsets(tc.start, tc.end)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateOffsets(%d, %d) error = %v, wantErr %v", tc.start, tc.end, err, tc.wantErr)
			}
		})
	}
}
