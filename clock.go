// Copyright (c) 2023 wetrycode
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package tinyhttpd

import "time"

// Clock 时间源，响应的Date头和/time路由都通过它获取当前时间
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系统墙上时间
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock 始终返回固定的时间
type FixedClock struct {
	T time.Time
}

func (f FixedClock) Now() time.Time {
	return f.T
}
