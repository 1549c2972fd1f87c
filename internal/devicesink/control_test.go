package devicesink

import "testing"

func TestControlSetRouteBumpsRevisionOnlyWhenDifferent(t *testing.T) {
	c := NewControl()
	_, rev0 := c.Desired()

	c.SetRoute(Route{Backend: Shared})
	_, rev1 := c.Desired()
	if rev1 != rev0 {
		t.Fatalf("setting the same route should not bump revision: rev0=%d rev1=%d", rev0, rev1)
	}

	c.SetRoute(Route{Backend: Exclusive, DeviceID: "dev-a"})
	_, rev2 := c.Desired()
	if rev2 != rev1+1 {
		t.Fatalf("setting a different route should bump revision by one: rev1=%d rev2=%d", rev1, rev2)
	}
}

func TestControlNormalizesWhitespaceDeviceID(t *testing.T) {
	c := NewControl()
	c.SetRoute(Route{Backend: Exclusive, DeviceID: "dev-a"})
	_, rev1 := c.Desired()

	c.SetRoute(Route{Backend: Exclusive, DeviceID: "  dev-a  "})
	_, rev2 := c.Desired()
	if rev2 != rev1 {
		t.Fatalf("whitespace-padded device id should normalize equal, revision changed: rev1=%d rev2=%d", rev1, rev2)
	}
}

func TestControlNeedsReconfigureAndMarkApplied(t *testing.T) {
	c := NewControl()
	if c.NeedsReconfigure() {
		t.Fatal("fresh control should not need reconfigure")
	}

	c.SetRoute(Route{Backend: Exclusive, DeviceID: "dev-a"})
	if !c.NeedsReconfigure() {
		t.Fatal("expected reconfigure needed after route change")
	}

	_, rev := c.Desired()
	c.markApplied(rev)
	if c.NeedsReconfigure() {
		t.Fatal("expected reconfigure satisfied after markApplied")
	}
}

func TestControlMarkAppliedNeverDecrements(t *testing.T) {
	c := NewControl()
	c.SetRoute(Route{Backend: Exclusive, DeviceID: "dev-a"})
	_, rev := c.Desired()
	c.markApplied(rev)
	if c.AppliedRevision() != rev {
		t.Fatalf("AppliedRevision = %d, want %d", c.AppliedRevision(), rev)
	}

	c.markApplied(0)
	if c.AppliedRevision() != rev {
		t.Fatalf("markApplied(0) decremented AppliedRevision to %d", c.AppliedRevision())
	}
}
