/**
 * Copyright (c) 2023 wetrycode
 *
 * This software is released under the MIT License.
 * https://opensource.org/licenses/MIT
 */

package api

const (
	SUCCESS        = 200
	ERROR          = 500
	INVALID_PARAMS = 400
	NOT_FOUND      = 404

	SERVER_NOT_RUNNING = 1001
)

var MsgFlags = map[int]string{
	SUCCESS:            "ok",
	ERROR:              "fail",
	INVALID_PARAMS:     "bad request",
	NOT_FOUND:          "resource not found",
	SERVER_NOT_RUNNING: "server not running",
}

// GetMsg get error information based on Code
func GetMsg(code int) string {
	msg, ok := MsgFlags[code]
	if ok {
		return msg
	}

	return MsgFlags[ERROR]
}
