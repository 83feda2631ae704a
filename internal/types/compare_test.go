package types

import (
	"math"
	"testing"
)

func TestCompareNulls(t *testing.T) {
	if Compare(nil, nil, Int32) != 0 {
		t.Fatal("nil vs nil should be 0")
	}
	if Compare(nil, int64(1), Int32) >= 0 {
		t.Fatal("nil should sort before any non-null")
	}
	if Compare(int64(1), nil, Int32) <= 0 {
		t.Fatal("non-null should sort after nil")
	}
}

func TestCompareIntegers(t *testing.T) {
	if Compare(int64(1), int64(2), Int32) >= 0 {
		t.Fatal("1 should be < 2")
	}
	if Compare(int64(5), int64(5), Int64) != 0 {
		t.Fatal("5 should equal 5")
	}
}

func TestCompareFloatNaN(t *testing.T) {
	if Compare(math.NaN(), 1.0, Float64) <= 0 {
		t.Fatal("NaN should sort above any other float")
	}
	if Compare(1.0, math.NaN(), Float64) >= 0 {
		t.Fatal("any other float should sort below NaN")
	}
	if Compare(math.NaN(), math.NaN(), Float64) != 0 {
		t.Fatal("NaN should compare equal to itself")
	}
}

func TestCompareFloatSignedZero(t *testing.T) {
	if Compare(0.0, math.Copysign(0, -1), Float64) != 0 {
		t.Fatal("+0 and -0 should compare equal")
	}
}

func TestCompareCharTrimsTrailingSpace(t *testing.T) {
	if Compare("abc", "abc   ", Char) != 0 {
		t.Fatal("CHAR comparison should trim trailing spaces")
	}
	if Compare("abc", "abc   ", VarChar) == 0 {
		t.Fatal("VARCHAR comparison should not trim")
	}
}

func TestCompareBinary(t *testing.T) {
	if Compare([]byte{1, 2}, []byte{1, 3}, Binary) >= 0 {
		t.Fatal("[1,2] should sort before [1,3]")
	}
}

func TestCompareSerializedAgreesWithCompare(t *testing.T) {
	a, _ := Serialize(int64(-5), Int32)
	b, _ := Serialize(int64(5), Int32)
	if CompareSerialized(a, b, Int32) >= 0 {
		t.Fatal("serialized -5 should sort before serialized 5")
	}
}
