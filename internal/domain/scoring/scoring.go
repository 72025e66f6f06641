// Package scoring holds the per-list point formulas.
//
// Every Func is pure: the same (rank, total) always yields the same points,
// which lets ingestion recompute a whole list whenever its length changes.
package scoring

import (
	"fmt"
	"math"
	"sort"
)

// Func maps a 1-based rank within a list of total items to points.
type Func func(rank, total int) float64

// Formula names accepted by Lookup.
const (
	FormulaAREDL     = "aredl"
	FormulaHDL       = "hdl"
	FormulaIDL       = "idl"
	FormulaCL        = "cl"
	FormulaUDL       = "udl"
	Formula2PL       = "2pl"
	FormulaTSL       = "tsl"
	FormulaPemonlist = "pl"
)

const aredlBaseFactor = 0.0005832492374192035997815

// AREDL decays with the square root of rank and stretches with list length.
func AREDL(rank, total int) float64 {
	if total <= 1 {
		// limit of the curve at rank 1 for any list length
		return 500
	}
	b := float64(total-1) * aredlBaseFactor
	a := 600 * math.Sqrt(b)
	return a/math.Sqrt(float64(rank-1)/50+b) - 100
}

// HDL is linear in rank.
func HDL(rank, _ int) float64 {
	return -0.22371358*float64(rank) + 50.22371358
}

// IDL is linear to two decimals and zero past rank 150.
func IDL(rank, _ int) float64 {
	if rank > 150 {
		return 0
	}
	return roundHalfUp(100*(74875-375*float64(rank))/298) / 100
}

// CL decays exponentially from 250 at rank 1 to 15 at the last rank.
func CL(rank, total int) float64 {
	if total <= 1 {
		return 250
	}
	return 250 * math.Exp((math.Log(250.0/15.0)/(1-float64(total)))*float64(rank-1))
}

// UDL decays with the inverse square root of rank and is zero past rank 150.
func UDL(rank, _ int) float64 {
	if rank > 150 {
		return 0
	}
	return (140*250.0+7000)/math.Sqrt(3157*float64(rank-1)+19600) - 50
}

// TwoPlayer decays exponentially toward a small floor.
func TwoPlayer(rank, _ int) float64 {
	return 164.498*math.Exp(-0.0982586*float64(rank)) + 0.896325
}

// TSL decays with rank^0.4 from 200.
func TSL(rank, _ int) float64 {
	return -24.9975*math.Pow(float64(rank-1), 0.4) + 200
}

// Pemonlist is a rounded logarithmic curve and zero past rank 150.
func Pemonlist(rank, _ int) float64 {
	if rank > 150 {
		return 0
	}
	return roundHalfUp(190.5/(math.Log10(0.0032*(float64(rank)+89.8))+1) - 211.29)
}

// roundHalfUp rounds .5 toward positive infinity.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

var formulas = map[string]Func{
	FormulaAREDL:     AREDL,
	FormulaHDL:       HDL,
	FormulaIDL:       IDL,
	FormulaCL:        CL,
	FormulaUDL:       UDL,
	Formula2PL:       TwoPlayer,
	FormulaTSL:       TSL,
	FormulaPemonlist: Pemonlist,
}

// Lookup returns the formula registered under name.
func Lookup(name string) (Func, error) {
	f, ok := formulas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormula, name)
	}
	return f, nil
}

// Names lists registered formula names in sorted order.
func Names() []string {
	names := make([]string, 0, len(formulas))
	for n := range formulas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Points evaluates f for every rank of a list of length total.
func Points(f Func, total int) []float64 {
	out := make([]float64, total)
	for i := range out {
		out[i] = f(i+1, total)
	}
	return out
}
