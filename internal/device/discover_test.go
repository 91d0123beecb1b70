package device

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"storypack/internal/devicemeta"
	"storypack/internal/logging"
	"storypack/internal/testsupport"
)

func writeMounts(t *testing.T, lines ...string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mounts")
	testsupport.WriteFile(t, path, []byte(strings.Join(lines, "\n")+"\n"))
	old := mountsPath
	mountsPath = path
	t.Cleanup(func() { mountsPath = old })
}

func TestParseMountsDecodesEscapes(t *testing.T) {
	entries, err := parseMounts(strings.NewReader(
		"/dev/sdb1 /media/me/LUNII\\040STORY vfat rw 0 0\n" +
			"short line\n" +
			"proc /proc proc rw 0 0\n"))
	if err != nil {
		t.Fatalf("parseMounts: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].target != "/media/me/LUNII STORY" || entries[0].fstype != "vfat" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestFindListsStorytellers(t *testing.T) {
	lunii := testsupport.NewLuniiRoot(t, testsupport.LegacyMetadata(t))
	flam := testsupport.NewFlamRoot(t, testsupport.FlamMetadata(t))
	plain := t.TempDir()
	writeMounts(t,
		"/dev/sdb1 "+strings.ReplaceAll(lunii, " ", "\\040")+" vfat rw 0 0",
		"/dev/sdc1 "+plain+" ext4 rw 0 0",
		"proc "+lunii+" proc rw 0 0",
	)

	found, err := Find(flam, lunii, "")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 storytellers, got %+v", found)
	}
	if found[0].Root != lunii || found[0].Source != "/dev/sdb1" || found[0].Family != devicemeta.FamilyLunii {
		t.Fatalf("unexpected first mount %+v", found[0])
	}
	if found[1].Root != flam || found[1].Family != devicemeta.FamilyFlam {
		t.Fatalf("unexpected second mount %+v", found[1])
	}
}

func TestMountRoot(t *testing.T) {
	writeMounts(t, "/dev/sdb1 /media/LUNII vfat rw 0 0")
	root, err := MountRoot("/dev/sdb1")
	if err != nil || root != "/media/LUNII" {
		t.Fatalf("MountRoot = %q, %v", root, err)
	}
	if _, err := MountRoot("/dev/sdz9"); err != errMountNotFound {
		t.Fatalf("expected errMountNotFound, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	caps := allCapabilities.Without(CapExportAll)
	if caps.Has(CapExportAll) || !caps.Has(CapExport) {
		t.Fatalf("unexpected set %s", caps)
	}
	if got := Capabilities(CapImport | CapRemove).String(); got != "import,remove" {
		t.Fatalf("String() = %q", got)
	}
}

func TestWatcherStopStartIdempotency(t *testing.T) {
	var nilWatcher *Watcher
	nilWatcher.Stop()
	if nilWatcher.Running() {
		t.Fatal("nil watcher is never running")
	}
	if err := nilWatcher.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil watcher: %v", err)
	}

	w := NewWatcher(logging.NewNop(), nil)
	w.Stop()
	w.Stop()
	if w.Running() {
		t.Fatal("unstarted watcher reports running")
	}
}

func TestWatcherMatcher(t *testing.T) {
	w := NewWatcher(logging.NewNop(), nil)
	matcher := w.buildMatcher()

	event := func(action netlink.KObjAction, vendor, model string) netlink.UEvent {
		return netlink.UEvent{
			Action: action,
			Env: map[string]string{
				"SUBSYSTEM":    "block",
				"ID_VENDOR_ID": vendor,
				"ID_MODEL_ID":  model,
			},
		}
	}
	if !matcher.Evaluate(event(netlink.ADD, "0483", "a341")) {
		t.Error("expected add of a known storyteller to match")
	}
	if !matcher.Evaluate(event(netlink.REMOVE, "0c45", "6820")) {
		t.Error("expected remove of a known storyteller to match")
	}
	if matcher.Evaluate(event(netlink.CHANGE, "0483", "a341")) {
		t.Error("change events are not plug events")
	}
	if matcher.Evaluate(event(netlink.ADD, "0781", "5567")) {
		t.Error("unknown vendor must not match")
	}
}

func TestWatcherHandleEvent(t *testing.T) {
	var got []Event
	w := NewWatcher(logging.NewNop(), func(_ context.Context, ev Event) { got = append(got, ev) })
	w.mountRoot = func(node string) (string, error) {
		if node == "/dev/sdb1" {
			return "/media/LUNII", nil
		}
		return "", errMountNotFound
	}

	w.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVNAME": "sdb1", "ID_VENDOR_ID": "0483", "ID_MODEL_ID": "a341"},
	})
	w.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"DEVPATH":      "/devices/pci0000:00/usb1/1-1/host6/target6:0:0/6:0:0:0/block/sdc",
			"ID_VENDOR_ID": "0c45",
			"ID_MODEL_ID":  "6840",
		},
	})
	w.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"DEVNAME": "/dev/sdb1", "ID_VENDOR_ID": "0483", "ID_MODEL_ID": "a341"},
	})
	w.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVNAME": "/dev/sdd", "ID_VENDOR_ID": "0483", "ID_MODEL_ID": "ffff"},
	})
	w.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"ID_VENDOR_ID": "0483", "ID_MODEL_ID": "a341"},
	})

	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %+v", got)
	}
	if got[0].Node != "/dev/sdb1" || got[0].Root != "/media/LUNII" || got[0].USB != devicemeta.USBLuniiV2V3 {
		t.Fatalf("unexpected first event %+v", got[0])
	}
	if got[1].Node != "/dev/sdc" || got[1].Root != "" || got[1].USB != devicemeta.USBLuniiV1Fw2 {
		t.Fatalf("unexpected second event %+v", got[1])
	}
	if got[2].Action != "remove" || got[2].Root != "" {
		t.Fatalf("remove events carry no root: %+v", got[2])
	}
}
