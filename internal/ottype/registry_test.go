package ottype

import "testing"

func TestDefaultRegistryResolvesShortNameAndURI(t *testing.T) {
	r := NewDefaultRegistry()

	byName, ok := r.Resolve(CounterName)
	if !ok {
		t.Fatalf("counter not registered under short name")
	}
	byURI, ok := r.Resolve(byName.URI())
	if !ok {
		t.Fatalf("counter not registered under its URI")
	}
	if byName != byURI {
		t.Fatalf("short name and URI resolved to different handlers")
	}

	if _, ok := r.Resolve(TextName); !ok {
		t.Fatalf("simple-text not registered")
	}
	if _, ok := r.Resolve("nonexistent"); ok {
		t.Fatalf("resolved unregistered type")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	r := NewRegistry()
	c := NewCounterType()
	r.Register(c, "dup")
	r.Register(c, "dup")
}
