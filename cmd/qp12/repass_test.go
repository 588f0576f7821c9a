package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/remiblancher/qp12/pkg/p12"
)

func buildContainer(t *testing.T, tc *testContext, name, pass string) string {
	t.Helper()
	keyPath, certPath, caPath := tc.setupMaterial()
	out := tc.path(name)
	_, err := executeCommand(rootCmd, "build",
		"--key", keyPath, "--cert", certPath, "--ca", caPath,
		"--out", out, "--passout", pass)
	assertNoError(t, err)
	return out
}

func TestA_Repass(t *testing.T) {
	tc := newTestContext(t)
	in := buildContainer(t, tc, "old.p12", "test123")
	out := tc.path("new.p12")

	output, err := executeCommand(rootCmd, "repass",
		"--in", in, "--out", out,
		"--passin", "test123", "--passout", "newpass")
	assertNoError(t, err)
	if !strings.Contains(output, "PKCS#12 container re-protected: "+out) {
		t.Errorf("unexpected output:\n%s", output)
	}

	output, err = executeCommand(rootCmd, "inspect", "--in", out, "--passin", "newpass")
	assertNoError(t, err)
	if !strings.Contains(output, "CA certificates: 1") {
		t.Errorf("CA chain not kept:\n%s", output)
	}

	_, err = executeCommand(rootCmd, "inspect", "--in", out, "--passin", "test123")
	if !errors.Is(err, p12.ErrDecode) {
		t.Errorf("old passphrase: error = %v, want ErrDecode", err)
	}
}

func TestA_Repass_Name(t *testing.T) {
	tc := newTestContext(t)
	in := buildContainer(t, tc, "old.p12", "test123")
	out := tc.path("named.p12")

	_, err := executeCommand(rootCmd, "repass",
		"--in", in, "--out", out,
		"--passin", "test123", "--passout", "newpass",
		"--name", "Renamed")
	assertNoError(t, err)

	output, err := executeCommand(rootCmd, "inspect", "--in", out, "--passin", "newpass")
	assertNoError(t, err)
	if !strings.Contains(output, "Friendly name:  Renamed") {
		t.Errorf("friendly name not stored:\n%s", output)
	}
}

func TestA_Repass_WrongPassphrase(t *testing.T) {
	tc := newTestContext(t)
	in := buildContainer(t, tc, "old.p12", "test123")

	_, err := executeCommand(rootCmd, "repass",
		"--in", in, "--out", tc.path("new.p12"),
		"--passin", "wrong", "--passout", "newpass")
	if !errors.Is(err, p12.ErrDecode) {
		t.Errorf("error = %v, want ErrDecode", err)
	}
}

func TestA_Repass_Errors(t *testing.T) {
	tc := newTestContext(t)
	in := buildContainer(t, tc, "old.p12", "pw")
	garbage := tc.writeFile("garbage.p12", []byte("not a container"))

	tests := []struct {
		name string
		args []string
	}{
		{"[Unit] Repass: missing input file", []string{"repass", "--in", tc.path("nope.p12"), "--out", tc.path("x.p12"), "--passin", "pw", "--passout", "x"}},
		{"[Unit] Repass: missing new passphrase", []string{"repass", "--in", in, "--out", tc.path("x.p12"), "--passin", "pw"}},
		{"[Unit] Repass: corrupt container", []string{"repass", "--in", garbage, "--out", tc.path("x.p12"), "--passin", "pw", "--passout", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(rootCmd, tt.args...)
			assertError(t, err)
		})
	}
}
