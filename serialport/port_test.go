package serialport

import "testing"

func TestOpenRejectsUnsupportedBaud(t *testing.T) {
	_, err := Open(Config{Device: "/dev/null", Baud: 1234})
	if err != ErrUnsupportedBaud {
		t.Fatalf("expected ErrUnsupportedBaud, got %v", err)
	}
}

func TestSupportedBaudsIncludesStandardRates(t *testing.T) {
	want := []uint32{9600, 19200, 38400, 57600, 115200}
	for _, b := range want {
		if !BaudSupported(b) {
			t.Fatalf("expected %d to be supported", b)
		}
	}
}
