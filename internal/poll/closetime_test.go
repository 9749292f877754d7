package poll

import (
	"testing"
	"time"
)

var testLoc = time.FixedZone("UTC+2", 2*60*60)

// 2024-09-03 is a Tuesday.
func tuesday(hour, minute int) time.Time {
	return time.Date(2024, 9, 3, hour, minute, 0, 0, testLoc)
}

func governedTue(eventAt string) Template {
	return Template{
		Day:      "tue",
		Governed: true,
		PollAt:   "09:00",
		EventAt:  eventAt,
		Question: "Сегодня собираемся на песчанке в 20:00?",
		Options: []Option{
			{Text: "Да ✅", Kind: KindYes},
			{Text: "Нет ❌", Kind: KindNo},
			{Text: "Под вопросом ❔ (отвечу позже)", Kind: KindMaybe},
		},
	}
}

func TestComputeCloseGovernedSameDay(t *testing.T) {
	t.Parallel()
	opened := tuesday(9, 0)
	got := ComputeClose(governedTue("20:00"), opened)
	want := tuesday(19, 0)
	if !got.Equal(want) {
		t.Fatalf("close = %v, want %v", got, want)
	}
}

func TestComputeCloseGovernedWrapsToNextWeek(t *testing.T) {
	t.Parallel()
	opened := tuesday(19, 30) // past today's close time
	got := ComputeClose(governedTue("20:00"), opened)
	want := tuesday(19, 0).AddDate(0, 0, 7)
	if !got.Equal(want) {
		t.Fatalf("close = %v, want %v", got, want)
	}
}

func TestComputeCloseGovernedHourFloor(t *testing.T) {
	t.Parallel()
	opened := tuesday(9, 0)
	got := ComputeClose(governedTue("00:30"), opened)
	// 00:30 minus 1h floors at hour 0; that is before opening, so next week.
	want := time.Date(2024, 9, 10, 0, 30, 0, 0, testLoc)
	if !got.Equal(want) {
		t.Fatalf("close = %v, want %v", got, want)
	}
	if got.Hour() != 0 {
		t.Fatalf("hour went negative: %v", got)
	}
}

func TestComputeCloseGovernedNeverBeforeOpen(t *testing.T) {
	t.Parallel()
	for hour := 0; hour < 24; hour++ {
		opened := tuesday(hour, 0)
		got := ComputeClose(governedTue("20:00"), opened)
		if !got.After(opened) {
			t.Fatalf("opened %v: close %v not after open", opened, got)
		}
		if got.Weekday() != time.Tuesday {
			t.Fatalf("opened %v: close %v not on Tuesday", opened, got)
		}
	}
}

func TestComputeCloseExplicitOverride(t *testing.T) {
	t.Parallel()
	tpl := governedTue("20:00")
	tpl.CloseDay = "wed"
	tpl.CloseTime = "18:00"

	opened := tuesday(9, 0)
	got := ComputeClose(tpl, opened)
	want := time.Date(2024, 9, 4, 18, 0, 0, 0, testLoc)
	if !got.Equal(want) {
		t.Fatalf("close = %v, want %v", got, want)
	}
	if got.Weekday() != time.Wednesday || got.Hour() != 18 {
		t.Fatalf("override not honored: %v", got)
	}
}

func TestComputeCloseOverrideStrictlyAfter(t *testing.T) {
	t.Parallel()
	tpl := governedTue("20:00")
	tpl.CloseDay = "tue"
	tpl.CloseTime = "09:00"

	opened := tuesday(9, 0) // exactly the override moment
	got := ComputeClose(tpl, opened)
	want := tuesday(9, 0).AddDate(0, 0, 7)
	if !got.Equal(want) {
		t.Fatalf("close = %v, want %v", got, want)
	}
}

func TestComputeCloseManualDefaults24h(t *testing.T) {
	t.Parallel()
	tpl := Template{
		Day:      DayManual,
		Question: "Играем?",
		Options:  []Option{{Text: "Да ✅"}, {Text: "Нет ❌"}},
	}
	opened := tuesday(13, 45)
	got := ComputeClose(tpl, opened)
	if !got.Equal(opened.Add(24 * time.Hour)) {
		t.Fatalf("close = %v, want +24h", got)
	}
}

func TestComputeCloseUngovernedWeekdayDefaults24h(t *testing.T) {
	t.Parallel()
	tpl := governedTue("12:00")
	tpl.Day = "fri"
	tpl.Governed = false
	opened := time.Date(2024, 9, 6, 21, 0, 0, 0, testLoc) // Friday evening
	got := ComputeClose(tpl, opened)
	if !got.Equal(opened.Add(24 * time.Hour)) {
		t.Fatalf("close = %v, want +24h", got)
	}
}

func TestComputeCloseBadEventTimeFallsBack(t *testing.T) {
	t.Parallel()
	tpl := governedTue("25:99")
	opened := tuesday(9, 0)
	got := ComputeClose(tpl, opened)
	if !got.Equal(opened.Add(24 * time.Hour)) {
		t.Fatalf("close = %v, want +24h fallback", got)
	}
}

func TestComputeCloseSafetyClamp(t *testing.T) {
	t.Parallel()
	// Game at 10:00, poll opened 08:58: computed close 09:00 is only two
	// minutes out, which must fall back to the 24h default.
	opened := tuesday(8, 58)
	got := ComputeClose(governedTue("10:00"), opened)
	if !got.Equal(opened.Add(24 * time.Hour)) {
		t.Fatalf("close = %v, want +24h clamp", got)
	}
}
