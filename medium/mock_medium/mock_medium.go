// This file was auto-generated using createmock. See the following page for
// more information:
//
//     https://github.com/jacobsa/oglemock
//

package mock_medium

import (
	fmt "fmt"
	oglemock "github.com/jacobsa/oglemock"
	medium "github.com/nasa/eefs/medium"
	runtime "runtime"
	time "time"
	unsafe "unsafe"
)

type MockMedium interface {
	medium.Medium
	oglemock.MockObject
}

type mockMedium struct {
	controller  oglemock.Controller
	description string
}

func NewMockMedium(
	c oglemock.Controller,
	desc string) MockMedium {
	return &mockMedium{
		controller:  c,
		description: desc,
	}
}

func (m *mockMedium) Oglemock_Id() uintptr {
	return uintptr(unsafe.Pointer(m))
}

func (m *mockMedium) Oglemock_Description() string {
	return m.description
}

func (m *mockMedium) ReadAt(p0 []byte, p1 int64) (o0 error) {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"ReadAt",
		file,
		line,
		[]interface{}{p0, p1})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockMedium.ReadAt: invalid return values: %v", retVals))
	}

	// o0 error
	if retVals[0] != nil {
		o0 = retVals[0].(error)
	}

	return
}

func (m *mockMedium) WriteAt(p0 []byte, p1 int64) (o0 error) {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"WriteAt",
		file,
		line,
		[]interface{}{p0, p1})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockMedium.WriteAt: invalid return values: %v", retVals))
	}

	// o0 error
	if retVals[0] != nil {
		o0 = retVals[0].(error)
	}

	return
}

func (m *mockMedium) Flush() (o0 error) {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"Flush",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockMedium.Flush: invalid return values: %v", retVals))
	}

	// o0 error
	if retVals[0] != nil {
		o0 = retVals[0].(error)
	}

	return
}

func (m *mockMedium) Now() (o0 time.Time) {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"Now",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockMedium.Now: invalid return values: %v", retVals))
	}

	// o0 time.Time
	if retVals[0] != nil {
		o0 = retVals[0].(time.Time)
	}

	return
}

func (m *mockMedium) IsWriteProtected() (o0 bool) {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"IsWriteProtected",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockMedium.IsWriteProtected: invalid return values: %v", retVals))
	}

	// o0 bool
	if retVals[0] != nil {
		o0 = retVals[0].(bool)
	}

	return
}

func (m *mockMedium) Lock() {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"Lock",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 0 {
		panic(fmt.Sprintf("mockMedium.Lock: invalid return values: %v", retVals))
	}

	return
}

func (m *mockMedium) Unlock() {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"Unlock",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 0 {
		panic(fmt.Sprintf("mockMedium.Unlock: invalid return values: %v", retVals))
	}

	return
}

func (m *mockMedium) Size() (o0 int64) {
	// Get a file name and line number for the caller.
	_, file, line, _ := runtime.Caller(1)

	// Hand the call off to the controller, which does most of the work.
	retVals := m.controller.HandleMethodCall(
		m,
		"Size",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockMedium.Size: invalid return values: %v", retVals))
	}

	// o0 int64
	if retVals[0] != nil {
		o0 = retVals[0].(int64)
	}

	return
}
