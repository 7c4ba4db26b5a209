package airlink

import (
	"errors"
	"strings"
	"testing"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		number string
		valid  bool
	}{
		{"+15551234567", true},
		{"15551234567", true},
		{"112", true},
		{"+123456789012345", true},
		{"12", false},
		{"+1234567890123456", false},
		{"", false},
		{"+", false},
		{"555-1234", false},
		{"+1 555 1234", false},
		{"abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			err := ValidatePhoneNumber(tt.number)
			if tt.valid && err != nil {
				t.Errorf("ValidatePhoneNumber(%q) error = %v", tt.number, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidPhoneNumber) {
				t.Errorf("ValidatePhoneNumber(%q) error = %v, want ErrInvalidPhoneNumber", tt.number, err)
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"plain", Message{PhoneNumber: "+15551234567", Message: "hello"}, "+15551234567:hello\n"},
		{"colon in text", Message{PhoneNumber: "555", Message: "a:b"}, "555:a:b\n"},
		{"newline", Message{PhoneNumber: "555", Message: "line1\nline2"}, `555:line1\nline2` + "\n"},
		{"carriage return", Message{PhoneNumber: "555", Message: "a\r\nb"}, `555:a\r\nb` + "\n"},
		{"backslash", Message{PhoneNumber: "555", Message: `C:\path`}, `555:C:\\path` + "\n"},
		{"unicode", Message{PhoneNumber: "555", Message: "héllo 👋"}, "555:héllo 👋\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFrame(tt.msg)
			if err != nil {
				t.Fatalf("EncodeFrame() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeFrame() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{"bad number", Message{PhoneNumber: "not-a-number", Message: "hi"}, ErrInvalidPhoneNumber},
		{"empty number", Message{Message: "hi"}, ErrInvalidPhoneNumber},
		{"empty message", Message{PhoneNumber: "555"}, ErrEmptyMessage},
		{"too large", Message{PhoneNumber: "555", Message: strings.Repeat("x", maxFrameSize)}, ErrFrameTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFrame(tt.msg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("EncodeFrame() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Message
	}{
		{"plain", "+15551234567:hello", Message{PhoneNumber: "+15551234567", Message: "hello"}},
		{"trailing LF", "555:hi\n", Message{PhoneNumber: "555", Message: "hi"}},
		{"trailing CRLF", "555:hi\r\n", Message{PhoneNumber: "555", Message: "hi"}},
		{"empty text", "555:", Message{PhoneNumber: "555", Message: ""}},
		{"colon in text", "555:a:b", Message{PhoneNumber: "555", Message: "a:b"}},
		{"escapes", `555:a\nb\rc\\d`, Message{PhoneNumber: "555", Message: "a\nb\rc\\d"}},
		{"alphanumeric sender", "AMAZON:Your code is 1234", Message{PhoneNumber: "AMAZON", Message: "Your code is 1234"}},
		{"formatted number", "+44 7700 900123:hi", Message{PhoneNumber: "+44 7700 900123", Message: "hi"}},
		{"two digit short code", "12:short code", Message{PhoneNumber: "12", Message: "short code"}},
		{"unknown escape kept", `555:C:\temp`, Message{PhoneNumber: "555", Message: `C:\temp`}},
		{"trailing backslash kept", `555:oops\`, Message{PhoneNumber: "555", Message: `oops\`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeFrame([]byte(tt.frame))
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeFrame() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"no separator", "5551234"},
		{"empty sender", ":hello"},
		{"blank sender", "   :hello"},
		{"empty frame", "\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.frame))
			if !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("DecodeFrame(%q) error = %v, want ErrInvalidFrame", tt.frame, err)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	texts := []string{
		"hello",
		"multi\nline\r\nmessage",
		`back\slash\\n`,
		"ends with backslash \\",
		"a:b:c",
	}

	for _, text := range texts {
		frame, err := EncodeFrame(Message{PhoneNumber: "+447700900123", Message: text})
		if err != nil {
			t.Fatalf("EncodeFrame(%q) error = %v", text, err)
		}
		if strings.Count(string(frame), "\n") != 1 {
			t.Errorf("frame %q should contain exactly one newline", frame)
		}

		got, err := DecodeFrame(frame)
		if err != nil {
			t.Fatalf("DecodeFrame(%q) error = %v", frame, err)
		}
		if got.Message != text || got.PhoneNumber != "+447700900123" {
			t.Errorf("round trip of %q = %+v", text, got)
		}
	}
}
