package domain

import "testing"

func TestLookupField(t *testing.T) {
	tests := []struct {
		key    string
		want   Field
		wantOK bool
	}{
		{"Дата", FieldDate, true},
		{"  подразделение ", FieldBusinessUnit, true},
		{"area_today", FieldAreaToday, true},
		{"AreaToday", FieldAreaToday, true},
		{"Начала операции", FieldAreaCumulative, true},
		{"Исходное сообщение", FieldSourceExcerpt, true},
		{"комментарий", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := LookupField(tt.key)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("LookupField(%q) = (%v, %v), want (%v, %v)", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestOperationRecord_GetSet(t *testing.T) {
	var r OperationRecord
	for _, c := range Columns {
		r.Set(c.Field, c.Key)
	}
	for _, c := range Columns {
		if got := r.Get(c.Field); got != c.Key {
			t.Errorf("Get(%v) = %q, want %q", c.Field, got, c.Key)
		}
	}
}

func TestOperationRecord_MarkReview(t *testing.T) {
	var r OperationRecord
	r.MarkReview(FieldCrop)
	r.MarkReview(FieldDate)
	r.MarkReview(FieldCrop)

	if len(r.Review) != 2 {
		t.Fatalf("len(Review) = %d, want 2", len(r.Review))
	}
	if r.Review[0] != FieldDate || r.Review[1] != FieldCrop {
		t.Errorf("Review = %v, want [date crop]", r.Review)
	}
	if !r.NeedsReview(FieldCrop) || r.NeedsReview(FieldOperation) {
		t.Error("NeedsReview returned unexpected result")
	}
}

func TestSentinel(t *testing.T) {
	r := Sentinel("not json at all")
	if !r.IsEmpty() {
		t.Error("Sentinel should have no extracted fields")
	}
	if r.SourceExcerpt != "not json at all" {
		t.Errorf("SourceExcerpt = %q, want input text", r.SourceExcerpt)
	}
}

func TestColumnsOrder(t *testing.T) {
	if len(Columns) != 9 {
		t.Fatalf("len(Columns) = %d, want 9", len(Columns))
	}
	for i, c := range Columns {
		if int(c.Field) != i {
			t.Errorf("Columns[%d].Field = %d", i, c.Field)
		}
	}
	if len(ComparedFields) != 8 {
		t.Errorf("len(ComparedFields) = %d, want 8", len(ComparedFields))
	}
}
