// Package shared provides debugging, configuration, and error utilities
// used across every smartfarm controller component.
//
// This file contains debug functions that provide detailed location
// information for troubleshooting. Debug output includes file names, line
// numbers, and function names to help identify issues during development.
//
// Debug Mode:
// All debug functions check DEBUG_MODE before producing output. Set the
// DEBUG environment variable to "true" to enable debug logging.
package shared

import (
	"log"
	"path/filepath"
	"runtime"
	"strings"
)

// DebugPrint automatically gets file, line, and function info.
func DebugPrint(format string, args ...interface{}) {
	if !DEBUG_MODE {
		return
	}

	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Printf("DEBUG: "+format+"\n", args...)
		return
	}

	filename := filepath.Base(file)
	funcName := getShortFuncName(runtime.FuncForPC(pc).Name())

	log.Printf("[%s:%d %s]: "+format+"\n", append([]interface{}{filename, line, funcName}, args...)...)
}

// DebugError prints an error message regardless of DEBUG_MODE; file/line
// info is added only in debug mode.
func DebugError(err error) {
	if err == nil {
		return
	}
	if !DEBUG_MODE {
		log.Printf("ERROR: %v\n", err)
		return
	}

	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Printf("ERROR: %v\n", err)
		return
	}

	filename := filepath.Base(file)
	funcName := getShortFuncName(runtime.FuncForPC(pc).Name())

	log.Printf("ERROR [%s:%d %s]: %v\n", filename, line, funcName, err)
}

// DebugPanic logs a critical condition. In debug mode it panics so the
// condition surfaces loudly during development; otherwise it logs and
// returns -- a per-robot error should never take down the whole process.
func DebugPanic(format string, args ...interface{}) {
	if !DEBUG_MODE {
		log.Printf("CRITICAL: "+format, args...)
		return
	}

	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		log.Panicf("PANIC: "+format, args...)
		return
	}

	filename := filepath.Base(file)
	funcName := getShortFuncName(runtime.FuncForPC(pc).Name())

	log.Panicf("PANIC [%s:%d %s]: "+format, append([]interface{}{filename, line, funcName}, args...)...)
}

func getShortFuncName(fullName string) string {
	if lastSlash := strings.LastIndex(fullName, "/"); lastSlash >= 0 {
		fullName = fullName[lastSlash+1:]
	}
	if lastDot := strings.LastIndex(fullName, "."); lastDot >= 0 {
		return fullName[lastDot+1:]
	}
	return fullName
}
