package passphrase

import "testing"

func fixedEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestSourceReadsEnvironmentOnce(t *testing.T) {
	env := map[string]string{"METABOND_PASS": "hunter2"}
	src := NewSource("METABOND_PASS")
	src.lookup = fixedEnv(env)

	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("unexpected passphrase %q (%v)", got, err)
	}
	env["METABOND_PASS"] = "changed"
	if got, _ := src.Get(); got != "hunter2" {
		t.Fatalf("expected cached passphrase, got %q", got)
	}
}

func TestSourceRejectsBlankVariable(t *testing.T) {
	src := NewSource("METABOND_PASS")
	src.lookup = fixedEnv(map[string]string{"METABOND_PASS": "   "})
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected blank passphrase to be rejected")
	}
}
