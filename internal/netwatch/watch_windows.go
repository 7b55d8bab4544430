package netwatch

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	iphlpapi                    = windows.NewLazySystemDLL("iphlpapi.dll")
	procNotifyIpInterfaceChange = iphlpapi.NewProc("NotifyIpInterfaceChange")
	procCancelMibChangeNotify2  = iphlpapi.NewProc("CancelMibChangeNotify2")
)

func watch(ctx context.Context, notify func()) error {
	if err := procNotifyIpInterfaceChange.Find(); err != nil {
		return fmt.Errorf("netwatch: %w", err)
	}

	cb := windows.NewCallback(func(callerContext, row, notificationType uintptr) uintptr {
		notify()
		return 0
	})

	var handle windows.Handle
	r, _, _ := procNotifyIpInterfaceChange.Call(
		uintptr(windows.AF_INET6),
		cb,
		0,
		0, // no initial notification; the controller runs once at startup anyway
		uintptr(unsafe.Pointer(&handle)),
	)
	if r != 0 {
		return fmt.Errorf("netwatch: NotifyIpInterfaceChange: %w", windows.Errno(r))
	}

	go func() {
		<-ctx.Done()
		procCancelMibChangeNotify2.Call(uintptr(handle))
	}()
	return nil
}
