package metering

import (
	"testing"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/model"
)

func TestComputeUsage(t *testing.T) {
	u, err := ComputeUsage(1000, 1120.5, 0.15)
	if err != nil {
		t.Fatalf("compute usage: %v", err)
	}
	if u.KWh != 120.5 {
		t.Errorf("kwh = %v, want 120.5", u.KWh)
	}
	if u.Amount != 120.5*0.15 {
		t.Errorf("amount = %v, want %v", u.Amount, 120.5*0.15)
	}
}

func TestComputeUsageZeroDelta(t *testing.T) {
	u, err := ComputeUsage(1000, 1000, 0.15)
	if err != nil {
		t.Fatalf("compute usage: %v", err)
	}
	if u.KWh != 0 || u.Amount != 0 {
		t.Errorf("usage = %+v, want zero", u)
	}
}

func TestComputeUsageIndexRegression(t *testing.T) {
	_, err := ComputeUsage(1120, 1000, 0.15)
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Errorf("kind = %v, want validation", apperror.KindOf(err))
	}
}

func TestComputeUsageNegativeIndex(t *testing.T) {
	_, err := ComputeUsage(-5, 100, 0.15)
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Errorf("kind = %v, want validation", apperror.KindOf(err))
	}
}

func TestComputeDirect(t *testing.T) {
	u, err := ComputeDirect(80, 0.2)
	if err != nil {
		t.Fatalf("compute direct: %v", err)
	}
	if u.Amount != 16 {
		t.Errorf("amount = %v, want 16", u.Amount)
	}

	if _, err := ComputeDirect(-1, 0.2); apperror.KindOf(err) != apperror.KindValidation {
		t.Errorf("kind = %v, want validation", apperror.KindOf(err))
	}
}

func TestCheckAnomalyNoHistory(t *testing.T) {
	avg, anomalous := CheckAnomaly(500, nil)
	if anomalous {
		t.Error("no history should never be anomalous")
	}
	if avg != 0 {
		t.Errorf("average = %v, want 0", avg)
	}
}

func TestCheckAnomaly(t *testing.T) {
	priors := []model.Consumption{
		{KWh: 100},
		{KWh: 120},
		{KWh: 110},
	}

	avg, anomalous := CheckAnomaly(150, priors)
	if avg != 110 {
		t.Errorf("average = %v, want 110", avg)
	}
	if !anomalous {
		t.Error("150 against an average of 110 should be anomalous")
	}

	// equal to the average is not an anomaly
	_, anomalous = CheckAnomaly(110, priors)
	if anomalous {
		t.Error("a reading equal to the average should not be anomalous")
	}

	_, anomalous = CheckAnomaly(90, priors)
	if anomalous {
		t.Error("a reading below the average should not be anomalous")
	}
}

func TestCheckAnomalyShortHistory(t *testing.T) {
	priors := []model.Consumption{{KWh: 100}}
	avg, anomalous := CheckAnomaly(101, priors)
	if avg != 100 {
		t.Errorf("average = %v, want 100", avg)
	}
	if !anomalous {
		t.Error("expected anomaly with a single prior below the new reading")
	}
}
