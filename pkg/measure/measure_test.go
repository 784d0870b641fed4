package measure

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/specand/pkg/session"
	"github.com/dougsko/specand/pkg/status"
	"github.com/dougsko/specand/pkg/transport"
)

func openMock(t *testing.T, model string, options ...string) (*session.Session, *transport.Mock) {
	t.Helper()
	m := transport.NewMock(model, options...)
	s, err := session.Open("test", m, nil, session.Options{})
	require.NoError(t, err)
	m.ClearCommands()
	t.Cleanup(func() { s.Close() })
	return s, m
}

func requireStatus(t *testing.T, err error, kind status.Kind, paramIndex int, paramName string) {
	t.Helper()
	var se *status.Error
	require.True(t, errors.As(err, &se), "want %s, got %v", kind, err)
	assert.Equal(t, kind, se.Kind)
	assert.Equal(t, paramIndex, se.ParamIndex)
	assert.Equal(t, paramName, se.ParamName)
}

func TestPDSCHAllocation(t *testing.T) {
	t.Run("SubframeOutOfRange", func(t *testing.T) {
		s, m := openMock(t, "FSW", "K100")
		err := ConfigureLTEDownlinkPDSCHAllocation(s, 10, 0, LTEModulationQPSK, 10, 0, 0)
		requireStatus(t, err, status.KindRange, 2, "Subframe")
		assert.Contains(t, err.Error(), "parameter 2 (Subframe)")
		assert.Empty(t, m.Commands(), "no transport traffic on a range error")
	})

	t.Run("EveryParameterIndexed", func(t *testing.T) {
		s, m := openMock(t, "FSW", "K100")
		requireStatus(t, ConfigureLTEDownlinkPDSCHAllocation(s, 0, 111, LTEModulationQPSK, 10, 0, 0),
			status.KindRange, 3, "Allocation")
		requireStatus(t, ConfigureLTEDownlinkPDSCHAllocation(s, 0, 0, LTEModulation(9), 10, 0, 0),
			status.KindInvalidParameterValue, 4, "Modulation")
		requireStatus(t, ConfigureLTEDownlinkPDSCHAllocation(s, 0, 0, LTEModulationQPSK, 0, 0, 0),
			status.KindRange, 5, "Number Of RBs")
		requireStatus(t, ConfigureLTEDownlinkPDSCHAllocation(s, 0, 0, LTEModulationQPSK, 10, 110, 0),
			status.KindRange, 6, "Offset RB")
		requireStatus(t, ConfigureLTEDownlinkPDSCHAllocation(s, 0, 0, LTEModulationQPSK, 10, 0, 20),
			status.KindRange, 7, "Power")
		assert.Empty(t, m.Commands())
	})

	t.Run("Success", func(t *testing.T) {
		s, m := openMock(t, "FSW", "K100")
		err := ConfigureLTEDownlinkPDSCHAllocation(s, 3, 5, LTEModulationQAM64, 25, 10, -3)
		require.NoError(t, err)

		mod, _ := m.Setting("CONF:LTE:DL:SUBF3:ALL5:MOD")
		assert.Equal(t, "QAM64", mod)
		rbc, _ := m.Setting("CONF:LTE:DL:SUBF3:ALL5:RBC")
		assert.Equal(t, "25", rbc)
		rbo, _ := m.Setting("CONF:LTE:DL:SUBF3:ALL5:RBOF")
		assert.Equal(t, "10", rbo)
		pow, _ := m.Setting("CONF:LTE:DL:SUBF3:ALL5:POW")
		assert.Equal(t, "-3", pow)
	})

	t.Run("MissingOption", func(t *testing.T) {
		s, m := openMock(t, "FSW", "K10")
		err := ConfigureLTEDownlinkPDSCHAllocation(s, 3, 5, LTEModulationQAM64, 25, 10, -3)
		assert.True(t, status.Is(err, status.KindNotSupported), "got %v", err)
		assert.Empty(t, m.Commands())
	})

	t.Run("SubframeAllocations", func(t *testing.T) {
		s, m := openMock(t, "FSW", "K101")
		require.NoError(t, ConfigureLTEDownlinkSubframeAllocations(s, 9, 4))
		v, _ := m.Setting("CONF:LTE:DL:SUBF9:ALC")
		assert.Equal(t, "4", v)

		requireStatus(t, ConfigureLTEDownlinkSubframeAllocations(s, -1, 4), status.KindRange, 2, "Subframe")
	})
}

func TestLTEResultStatisticToken(t *testing.T) {
	s, m := openMock(t, "FSW", "K100")
	m.SetReply("FETC:SUMM:EVM:ALL:AVER?", []byte("1.25"))
	m.SetReply("FETC:SUMM:FERR:MAX?", []byte("-12.5"))

	evm, err := QueryLTEResultEVM(s, StatisticAverage)
	require.NoError(t, err)
	assert.Equal(t, 1.25, evm)
	assert.Equal(t, []string{"FETC:SUMM:EVM:ALL:Aver?"}, m.CommandsMatching("FETC:"))

	ferr, err := QueryLTEResultFrequencyError(s, StatisticMax)
	require.NoError(t, err)
	assert.Equal(t, -12.5, ferr)

	_, err = QueryLTEResultEVM(s, Statistic(3))
	requireStatus(t, err, status.KindInvalidParameterValue, 2, "Statistic")
}

func TestSweepTimeWrittenEvenWhenAuto(t *testing.T) {
	// the instrument ignores the value while auto coupling is on
	s, m := openMock(t, "FSW")
	require.NoError(t, ConfigureSweepTime(s, 1, true, 0.01))

	auto, _ := m.Setting("SENS1:SWE:TIME:AUTO")
	assert.Equal(t, "1", auto)
	value, ok := m.Setting("SENS1:SWE:TIME")
	assert.True(t, ok, "sweep time must be written with auto on")
	assert.Equal(t, "0.01", value)

	requireStatus(t, ConfigureSweepTime(s, 1, true, 0), status.KindRange, 4, "Sweep Time")
}

func TestFrequencyAndLevel(t *testing.T) {
	s, m := openMock(t, "FSW")

	require.NoError(t, ConfigureFrequencyCenterSpan(s, 2, 2.4e9, 100e6))
	center, _ := m.Setting("SENS2:FREQ:CENT")
	assert.Equal(t, "2.4E+09", center)
	span, _ := m.Setting("SENS2:FREQ:SPAN")
	assert.Equal(t, "1E+08", span)

	requireStatus(t, ConfigureFrequencyCenterSpan(s, 0, 1e9, 1e6), status.KindRange, 2, "Window")
	requireStatus(t, ConfigureFrequencyCenterSpan(s, 1, -1, 1e6), status.KindRange, 3, "Center Frequency")

	require.NoError(t, ConfigureReferenceLevel(s, 1, -20))
	level, _ := m.Setting("DISP1:TRAC:Y:RLEV")
	assert.Equal(t, "-20", level)
	requireStatus(t, ConfigureReferenceLevel(s, 1, 50), status.KindRange, 3, "Reference Level")

	sent := len(m.Commands())
	requireStatus(t, ConfigureReferenceLevel(s, 1, math.NaN()), status.KindRange, 3, "Reference Level")
	requireStatus(t, ConfigureFrequencyCenterSpan(s, 1, math.NaN(), 1e6), status.KindRange, 3, "Center Frequency")
	assert.Len(t, m.Commands(), sent, "NaN must be rejected before any I/O")
}

func TestTraceMode(t *testing.T) {
	s, m := openMock(t, "FSW")

	require.NoError(t, ConfigureTraceMode(s, 1, 2, TraceModeMaxHold))
	assert.Contains(t, m.Commands(), "DISP1:TRAC2:MODE MAXH")

	mode, err := QueryTraceMode(s, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, TraceModeMaxHold, mode)

	requireStatus(t, ConfigureTraceMode(s, 1, 7, TraceModeView), status.KindRange, 3, "Trace")
	requireStatus(t, ConfigureTraceMode(s, 1, 1, TraceMode(-1)), status.KindInvalidParameterValue, 4, "Trace Mode")
}

func TestReadTraceData(t *testing.T) {
	s, m := openMock(t, "FSW")
	values := []float64{-90, -85.5, -70.25, -60, -95}
	m.SetFloats("TRAC1:DATA? TRACE1", values)

	dst := make([]float64, 3)
	written, available, err := ReadTraceData(s, 1, 1, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, written)
	assert.Equal(t, 5, available)
	assert.Equal(t, values[:3], dst)

	_, _, err = ReadTraceData(s, 1, 0, dst)
	requireStatus(t, err, status.KindRange, 3, "Trace")
}

func TestMarker(t *testing.T) {
	s, m := openMock(t, "FSW")

	require.NoError(t, ConfigureMarker(s, 1, 2, true, 1, 1.5e9))
	m.SetReply("CALC1:MARK2:Y?", []byte("-42.5"))

	x, y, err := QueryMarker(s, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.5e9, x)
	assert.Equal(t, -42.5, y)

	t.Run("PartialOutputs", func(t *testing.T) {
		m.Reject("CALC1:MARK2:Y", -200, "Execution error")
		x, y, err := QueryMarker(s, 1, 2)
		assert.True(t, status.Is(err, status.KindDeviceRejected), "got %v", err)
		assert.Equal(t, 1.5e9, x, "position read before the failure is kept")
		assert.Equal(t, 0.0, y)
	})

	requireStatus(t, ConfigureMarker(s, 1, 17, true, 1, 0), status.KindRange, 3, "Marker")
	requireStatus(t, ConfigureMarker(s, 1, 1, true, 9, 0), status.KindRange, 5, "Trace")
}

func TestInitiateAndWait(t *testing.T) {
	s, m := openMock(t, "FSW")

	require.NoError(t, InitiateAndWait(s, time.Minute))
	assert.Contains(t, m.Commands(), "INIT:IMM;*OPC?")

	err := s.Do(func(g *session.Gateway) error {
		assert.Equal(t, session.DefaultOPCTimeout, g.OPCTimeout(), "OPC timeout must be restored")
		return nil
	})
	require.NoError(t, err)

	requireStatus(t, InitiateAndWait(s, 0), status.KindRange, 2, "Timeout")
}

func TestSelectMode(t *testing.T) {
	s, m := openMock(t, "FSW")
	require.NoError(t, SelectMode(s, ModeVSA))
	v, _ := m.Setting("INST:SEL")
	assert.Equal(t, "DDEM", v)

	requireStatus(t, SelectMode(s, Mode(42)), status.KindInvalidParameterValue, 2, "Mode")
}

func TestGSM(t *testing.T) {
	s, m := openMock(t, "FSW", "K10")

	t.Run("LimitReferenceToken", func(t *testing.T) {
		require.NoError(t, ConfigureGSMSpectrumLimitReference(s, 1, LimitRelative, true))
		assert.Contains(t, m.Commands(), "CALC1:LIM:SPEC:REL:STAT ON")
		assert.Equal(t, "REL", LimitRelative.String())

		requireStatus(t, ConfigureGSMSpectrumLimitReference(s, 1, LimitReference(2), true),
			status.KindInvalidParameterValue, 3, "Limit Reference")
	})

	t.Run("Slot", func(t *testing.T) {
		require.NoError(t, ConfigureGSMSlotToMeasure(s, 3))
		requireStatus(t, ConfigureGSMSlotToMeasure(s, 8), status.KindRange, 2, "Slot")
	})

	t.Run("PowerVsTime", func(t *testing.T) {
		m.SetFloats("FETC:BURS:PVTT:ALL?", []float64{-10, -5, 0, -5})
		dst := make([]float64, 8)
		written, available, err := ReadGSMPowerVsTime(s, dst)
		require.NoError(t, err)
		assert.Equal(t, 4, written)
		assert.Equal(t, 4, available)
	})

	t.Run("ModulationSpectrumList", func(t *testing.T) {
		m.SetReply("FETC:SPEC:MOD:ALL?", []byte(
			"0,-1.8E+06,-1.8E+06,-65.2,-60,ABS,0,"+
				"1,1.8E+06,1.8E+06,-58.1,-60,REL,1"))
		entries, err := ReadGSMModulationSpectrumList(s)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, -1.8e6, entries[0].Frequency1)
		assert.True(t, entries[0].Passed)
		assert.Equal(t, LimitRelative, entries[1].Reference)
		assert.False(t, entries[1].Passed)
	})

	t.Run("UnknownListReference", func(t *testing.T) {
		m.SetReply("FETC:SPEC:MOD:ALL?", []byte("0,-1.8E+06,-1.8E+06,-65.2,-60,XYZ,0"))
		entries, err := ReadGSMModulationSpectrumList(s)
		assert.True(t, status.Is(err, status.KindNoData), "got %v", err)
		assert.Empty(t, entries)
	})

	t.Run("PartialListRecord", func(t *testing.T) {
		m.SetReply("FETC:SPEC:MOD:ALL?", []byte("0,-1.8E+06,-1.8E+06,-65.2"))
		_, err := ReadGSMModulationSpectrumList(s)
		assert.True(t, status.Is(err, status.KindNoData), "got %v", err)
	})

	t.Run("MissingOption", func(t *testing.T) {
		plain, pm := openMock(t, "FSV")
		_, err := ReadGSMModulationSpectrumList(plain)
		assert.True(t, status.Is(err, status.KindNotSupported), "got %v", err)
		assert.Empty(t, pm.Commands())
	})
}

func TestSpectrogram(t *testing.T) {
	s, m := openMock(t, "FSW")

	require.NoError(t, ConfigureSpectrogram(s, 1, true, 100))
	frames, _ := m.Setting("CALC1:SGR:FRAM:COUN")
	assert.Equal(t, "100", frames)
	requireStatus(t, ConfigureSpectrogram(s, 1, true, 0), status.KindRange, 4, "Frame Count")

	m.SetReply("CALC1:SGR:TST:DATA? ALL", []byte("1700000001,500000000,0,0,1700000000,0,0,0"))
	stamps, err := ReadSpectrogramTimestamps(s, 1)
	require.NoError(t, err)
	require.Len(t, stamps, 2)
	assert.Equal(t, time.Unix(1700000001, 500000000).UTC(), stamps[0])
	assert.True(t, stamps[1].Before(stamps[0]))

	require.NoError(t, ClearSpectrogram(s, 1))
	assert.Contains(t, m.Commands(), "CALC1:SGR:CLE")
}

func TestVSA(t *testing.T) {
	s, m := openMock(t, "FSW", "K70")

	t.Run("Bitstream", func(t *testing.T) {
		m.SetFloats("TRAC2:DATA? TRACE1", []float64{0, 1, 3, 2, 2})
		symbols, err := ReadVSABitstream(s, 2)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 3, 2, 2}, symbols)

		m.SetFloats("TRAC2:DATA? TRACE1", []float64{0.5})
		_, err = ReadVSABitstream(s, 2)
		assert.True(t, status.Is(err, status.KindNoData), "got %v", err)
	})

	t.Run("Constellation", func(t *testing.T) {
		m.SetFloats("TRAC3:DATA? TRACE1", []float64{0.5, 0.5, -0.5, 0.5, -0.5, -0.5})
		re := make([]float64, 3)
		im := make([]float64, 3)
		written, available, err := ReadVSAConstellation(s, 3, re, im)
		require.NoError(t, err)
		assert.Equal(t, 3, written)
		assert.Equal(t, 3, available)
		assert.Equal(t, []float64{0.5, -0.5, -0.5}, re)
	})

	t.Run("Marker", func(t *testing.T) {
		require.NoError(t, ConfigureVSAMarker(s, 1, 4, true, 120))
		m.SetReply("CALC1:MARK4:Y?", []byte("3.5"))
		x, y, err := QueryVSAMarker(s, 1, 4)
		require.NoError(t, err)
		assert.Equal(t, 120.0, x)
		assert.Equal(t, 3.5, y)

		_, _, err = QueryVSAMarker(s, 1, 5)
		requireStatus(t, err, status.KindRange, 3, "Marker")
	})

	t.Run("SymbolRate", func(t *testing.T) {
		require.NoError(t, ConfigureVSASymbolRate(s, 3.84e6))
		requireStatus(t, ConfigureVSASymbolRate(s, 1), status.KindRange, 2, "Symbol Rate")
	})

	t.Run("MissingOption", func(t *testing.T) {
		plain, _ := openMock(t, "FSW")
		_, err := ReadVSABitstream(plain, 1)
		assert.True(t, status.Is(err, status.KindNotSupported), "got %v", err)
	})
}

func TestIQ(t *testing.T) {
	s, m := openMock(t, "FSW")

	require.NoError(t, ConfigureIQCapture(s, 32e6, 1024))
	rate, _ := m.Setting("TRAC:IQ:SRAT")
	assert.Equal(t, "3.2E+07", rate)
	length, _ := m.Setting("TRAC:IQ:RLEN")
	assert.Equal(t, "1024", length)

	got, err := QueryIQSampleRate(s)
	require.NoError(t, err)
	assert.Equal(t, 32e6, got)

	requireStatus(t, ConfigureIQCapture(s, 1, 1024), status.KindRange, 2, "Sample Rate")
	requireStatus(t, ConfigureIQCapture(s, 32e6, 1), status.KindRange, 3, "Record Length")

	m.SetFloats("TRAC:IQ:DATA:MEM?", []float64{1, 0, 0, 1, -1, 0, 0, -1})
	re := make([]float64, 2)
	im := make([]float64, 2)
	written, available, err := ReadIQData(s, re, im)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, 4, available)
	assert.Equal(t, []float64{1, 0}, re)
	assert.Equal(t, []float64{0, 1}, im)
}
