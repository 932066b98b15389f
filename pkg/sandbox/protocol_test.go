package sandbox

import (
	"testing"
)

func TestDecodeReport(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantErr    bool
		wantStatus Status
		wantEqual  bool
	}{
		{
			name:       "ok and equal",
			data:       `{"status": "ok", "equal": true, "result": "{'A': 2.0}"}`,
			wantStatus: StatusOK,
			wantEqual:  true,
		},
		{
			name:       "missing symbol",
			data:       `{"status": "missing"}`,
			wantStatus: StatusMissing,
		},
		{
			name:       "runtime error with message",
			data:       `{"status": "runtime_error", "message": "boom"}`,
			wantStatus: StatusRuntimeError,
		},
		{
			name:    "ok without equal",
			data:    `{"status": "ok"}`,
			wantErr: true,
		},
		{
			name:    "unknown status",
			data:    `{"status": "exploded"}`,
			wantErr: true,
		},
		{
			name:    "no status",
			data:    `{"message": "hi"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			data:    `Traceback (most recent call last):`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := decodeReport([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got report %+v", r)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeReport() error = %v", err)
			}
			if r.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", r.Status, tt.wantStatus)
			}
			if r.Equal != tt.wantEqual {
				t.Errorf("Equal = %v, want %v", r.Equal, tt.wantEqual)
			}
		})
	}
}
