package hook

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/buildlink/internal/task/model"
)

func declining(name string, priority int, calls *[]string) *Funcs {
	return &Funcs{
		HandlerName:     name,
		HandlerPriority: priority,
		Execute: func(context.Context, *model.Request) (bool, error) {
			*calls = append(*calls, name)
			return false, nil
		},
		Cancel: func(model.ID) (bool, bool) {
			*calls = append(*calls, name)
			return false, false
		},
	}
}

func TestChain_PriorityOrder(t *testing.T) {
	var calls []string
	c := NewChain(
		declining("user", 10, &calls),
		declining("system", 1000, &calls),
		declining("plugin", 200, &calls),
		declining("user2", 10, &calls),
	)

	want := []string{"system", "plugin", "user", "user2"}
	if got := c.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	handled, err := c.Execute(context.Background(), &model.Request{})
	if handled || err != nil {
		t.Errorf("Execute() = %v, %v; want false, nil", handled, err)
	}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("call order = %v, want %v", calls, want)
	}
}

func TestChain_ExecuteShortCircuits(t *testing.T) {
	var calls []string
	taker := &Funcs{
		HandlerName:     "taker",
		HandlerPriority: 500,
		Execute: func(context.Context, *model.Request) (bool, error) {
			calls = append(calls, "taker")
			return true, nil
		},
	}
	c := NewChain(declining("first", 900, &calls), taker, declining("last", 1, &calls))

	handled, err := c.Execute(context.Background(), &model.Request{})
	if !handled || err != nil {
		t.Fatalf("Execute() = %v, %v; want true, nil", handled, err)
	}
	if want := []string{"first", "taker"}; !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestChain_ExecuteHandledError(t *testing.T) {
	boom := errors.New("boom")
	c := NewChain(&Funcs{
		HandlerName: "failing",
		Execute: func(context.Context, *model.Request) (bool, error) {
			return true, boom
		},
	})

	handled, err := c.Execute(context.Background(), &model.Request{})
	if !handled {
		t.Error("handled should be true")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapping %v", err, boom)
	}
}

func TestChain_Cancel(t *testing.T) {
	var calls []string
	id := model.NewID(model.KindExecute, "/p")
	c := NewChain(
		declining("skip", 100, &calls),
		&Funcs{
			HandlerName: "owner",
			Cancel: func(got model.ID) (bool, bool) {
				return got == id, false
			},
		},
	)

	handled, ack := c.Cancel(id)
	if !handled || ack {
		t.Errorf("Cancel() = %v, %v; want true, false", handled, ack)
	}

	handled, _ = c.Cancel(model.NewID(model.KindExecute, "/p"))
	if handled {
		t.Error("other ids should not be handled")
	}
}

func TestChain_RegisterReplacesByName(t *testing.T) {
	var calls []string
	c := NewChain(declining("a", 1, &calls), declining("b", 2, &calls))
	c.Register(declining("a", 3, &calls))

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(c.Names(), want) {
		t.Errorf("Names() = %v, want %v", c.Names(), want)
	}

	if !c.Unregister("a") {
		t.Error("Unregister(a) should succeed")
	}
	if c.Unregister("a") {
		t.Error("second Unregister(a) should fail")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestChain_Nil(t *testing.T) {
	var c *Chain
	if handled, err := c.Execute(context.Background(), &model.Request{}); handled || err != nil {
		t.Error("nil chain should not handle")
	}
	if handled, _ := c.Cancel(model.ID{}); handled {
		t.Error("nil chain should not handle cancel")
	}
	if c.Len() != 0 {
		t.Error("nil chain Len should be 0")
	}

	c.Register(&Funcs{HandlerName: "a"})
	if c.Unregister("a") {
		t.Error("nil chain Unregister should report false")
	}
	if names := c.Names(); len(names) != 0 {
		t.Errorf("nil chain Names = %v, want none", names)
	}
}

func TestFuncs_NilFunctions(t *testing.T) {
	f := &Funcs{HandlerName: "empty"}
	if handled, _ := f.TryExecute(context.Background(), &model.Request{}); handled {
		t.Error("nil Execute should decline")
	}
	if handled, _ := f.TryCancel(model.ID{}); handled {
		t.Error("nil Cancel should decline")
	}
}

func TestGlobHandler(t *testing.T) {
	inner := &Funcs{
		HandlerName:     "remote",
		HandlerPriority: 300,
		Execute: func(context.Context, *model.Request) (bool, error) {
			return true, nil
		},
		Cancel: func(model.ID) (bool, bool) { return true, true },
	}
	g, err := NewGlobHandler(inner, ":app:*", "*Test")
	if err != nil {
		t.Fatalf("NewGlobHandler: %v", err)
	}
	if g.Name() != "remote" || g.Priority() != 300 {
		t.Errorf("identity = %s/%d", g.Name(), g.Priority())
	}

	tests := []struct {
		tasks []string
		want  bool
	}{
		{[]string{":app:build"}, true},
		{[]string{":app:sub:build"}, false},
		{[]string{"clean", "integTest"}, true},
		{[]string{"clean"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		got, _ := g.TryExecute(context.Background(), &model.Request{TaskNames: tt.tasks})
		if got != tt.want {
			t.Errorf("TryExecute(%v) handled = %v, want %v", tt.tasks, got, tt.want)
		}
	}

	if handled, ack := g.TryCancel(model.ID{}); !handled || !ack {
		t.Error("cancel should be forwarded")
	}
}

func TestGlobHandler_BadPattern(t *testing.T) {
	if _, err := NewGlobHandler(&Funcs{HandlerName: "x"}, "[unclosed"); err == nil {
		t.Error("expected compile error")
	}
}
