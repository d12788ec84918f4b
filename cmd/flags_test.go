package cmd

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestFlagValue(t *testing.T) {
	c := &cobra.Command{Use: "lookalikes"}
	c.Flags().Float64("max-distance", 0.35, "")
	c.Flags().Bool("no-progress", true, "")

	if got := mustGetFloat64(c, "max-distance"); got != 0.35 {
		t.Errorf("expected 0.35, got %g", got)
	}
	if !mustGetBool(c, "no-progress") {
		t.Error("expected no-progress to be true")
	}
}

func TestFlagValue_UnknownFlagPanics(t *testing.T) {
	c := &cobra.Command{Use: "register"}
	c.Flags().String("email", "", "")

	defer func() {
		r := recover()
		msg, ok := r.(string)
		if !ok || !strings.Contains(msg, "register: flag --role") {
			t.Errorf("expected panic naming the command and flag, got %v", r)
		}
	}()
	mustGetString(c, "role")
}

func TestFlagValue_WrongTypePanics(t *testing.T) {
	c := &cobra.Command{Use: "serve"}
	c.Flags().String("port", "8080", "")

	defer func() {
		if recover() == nil {
			t.Error("expected reading a string flag as int to panic")
		}
	}()
	mustGetInt(c, "port")
}
