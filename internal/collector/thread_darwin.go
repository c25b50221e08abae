//go:build darwin && cgo

package collector

/*
#include <stdint.h>
#include <string.h>
#include <libproc.h>
#include <mach/mach.h>
#include <mach/mach_error.h>
#include <mach/thread_info.h>

typedef struct {
	uint64_t tid;
	uint64_t user_us;
	uint64_t system_us;
	int      run_state;
	char     name[64];
} tm_thread_t;

static uint64_t tm_micros(time_value_t t) {
	return (uint64_t)t.seconds * 1000000 + (uint64_t)t.microseconds;
}

// Fills out with up to max threads of pid. total receives the number of
// threads the task has, which may exceed max.
static kern_return_t tm_task_threads(int pid, tm_thread_t *out, int max, int *filled, int *total) {
	task_t task;
	thread_act_array_t threads;
	mach_msg_type_number_t count = 0;
	kern_return_t kr;

	*filled = 0;
	*total = 0;

	kr = task_for_pid(mach_task_self(), pid, &task);
	if (kr != KERN_SUCCESS) {
		return kr;
	}

	kr = task_threads(task, &threads, &count);
	if (kr != KERN_SUCCESS) {
		mach_port_deallocate(mach_task_self(), task);
		return kr;
	}
	*total = (int)count;

	for (mach_msg_type_number_t i = 0; i < count; i++) {
		thread_identifier_info_data_t ident;
		thread_basic_info_data_t basic;
		thread_extended_info_data_t ext;
		mach_msg_type_number_t n;

		if (*filled < max) {
			n = THREAD_IDENTIFIER_INFO_COUNT;
			kr = thread_info(threads[i], THREAD_IDENTIFIER_INFO, (thread_info_t)&ident, &n);
			if (kr == KERN_SUCCESS) {
				n = THREAD_BASIC_INFO_COUNT;
				kr = thread_info(threads[i], THREAD_BASIC_INFO, (thread_info_t)&basic, &n);
			}
			// a thread that exited mid-enumeration is skipped
			if (kr == KERN_SUCCESS) {
				tm_thread_t *t = &out[*filled];
				(*filled)++;

				t->tid = ident.thread_id;
				t->user_us = tm_micros(basic.user_time);
				t->system_us = tm_micros(basic.system_time);
				t->run_state = basic.run_state;
				t->name[0] = '\0';

				n = THREAD_EXTENDED_INFO_COUNT;
				if (thread_info(threads[i], THREAD_EXTENDED_INFO, (thread_info_t)&ext, &n) == KERN_SUCCESS) {
					strlcpy(t->name, ext.pth_name, sizeof(t->name));
				}
			}
		}
		mach_port_deallocate(mach_task_self(), threads[i]);
	}

	vm_deallocate(mach_task_self(), (vm_address_t)threads, count * sizeof(thread_act_t));
	mach_port_deallocate(mach_task_self(), task);
	return KERN_SUCCESS;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

const (
	initialThreadBuf = 64
	maxThreadBuf     = 1 << 16
)

type machError C.kern_return_t

func (e machError) Error() string {
	return fmt.Sprintf("%s (%d)", C.GoString(C.mach_error_string(C.kern_return_t(e))), int(e))
}

// machThreads enumerates the threads of pid with task_threads and
// thread_info. Reading another process's task port needs root or the
// debugger entitlement.
func machThreads(pid int) ([]machThread, error) {
	size := initialThreadBuf
	for {
		buf := make([]C.tm_thread_t, size)
		var filled, total C.int

		kr := C.tm_task_threads(C.int(pid), &buf[0], C.int(size), &filled, &total)
		if kr != C.KERN_SUCCESS {
			return nil, fmt.Errorf("task_threads(%d): %w", pid, machError(kr))
		}
		if int(total) > size && size < maxThreadBuf {
			size = min(int(total)*2, maxThreadBuf)
			continue
		}

		out := make([]machThread, int(filled))
		for i := range out {
			t := &buf[i]
			out[i] = machThread{
				ID:         int(t.tid),
				Name:       C.GoString(&t.name[0]),
				RunState:   int(t.run_state),
				UserMicros: uint64(t.user_us),
				SysMicros:  uint64(t.system_us),
			}
		}
		return out, nil
	}
}

// procName is the command name of pid, empty if it cannot be read.
func procName(pid int) string {
	var buf [256]C.char
	if n := C.proc_name(C.int(pid), unsafe.Pointer(&buf[0]), C.uint32_t(len(buf))); n <= 0 {
		return ""
	}
	return C.GoString(&buf[0])
}
