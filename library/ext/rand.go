package ext

import (
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

var srand *rand.Rand

func init() {
	srand = rand.New(rand.NewSource(time.Now().UnixNano()))
}

func GetRand() *rand.Rand {
	return srand
}

func RandFloat[T constraints.Float](min T, max T) T {
	if max <= min {
		return min
	}
	return T(srand.Float64())*(max-min) + min
}

func RandInt[T constraints.Integer](min T, max T) T {
	if max <= min {
		return min
	}
	return T(srand.Int63n(int64(max-min))) + min
}

// RandDuration 返回[min,max)内的随机时长
func RandDuration(min, max time.Duration) time.Duration {
	return RandInt(min, max)
}

// Pick 随机取一个元素 空切片返回零值
func Pick[T any](list []T) T {
	var zero T
	if len(list) == 0 {
		return zero
	}
	return list[srand.Intn(len(list))]
}
