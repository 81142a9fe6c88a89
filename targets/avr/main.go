//go:build tinygo && avr

// Firmware for an ATmega328P board: a 1ms logical clock on timer1, the
// smartdog on timer2, a heartbeat LED driven by the scheduler and the
// diagnostic link on the UART.
package main

//go:generate go run ../../host/cmd/coopmon gen -b board.yaml

import (
	"machine"

	"avrcoop/core"
	"avrcoop/diag"
)

// bootCountAddr holds a 16-bit counter bumped on every reset
const bootCountAddr = 0

var (
	rt       *core.Runtime
	clock    *core.Clock[ClockTicks]
	sched    *core.Scheduler[ClockTicks, DelayTicks]
	dog      *core.Smartdog
	reporter *diag.Reporter
	eeprom   *core.EEPROM

	blink core.Handle
	ledOn bool
)

func main() {
	rt = core.NewRuntime()
	bindVectors()

	// a reset by the hardware watchdog leaves it running
	wdt := watchdog{}
	wdt.Disable()

	initUART()
	rt.SetDebugWriter(writeDebug)

	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})

	var err error
	clock, err = core.NewClock[ClockTicks](rt.Vectors, newTimer1(), ClockTiming)
	if err != nil {
		halt(err)
	}
	sched, err = core.NewScheduler[ClockTicks, DelayTicks](clock, SchedulerCapacity)
	if err != nil {
		halt(err)
	}
	sched.Track(rt.Activity)

	reporter = diag.NewReporter(rt, txBuf)
	reporter.SetInput(rxBuf)
	reporter.SetClock(func() uint32 { return uint32(clock.Now()) }, ClockPeriodUs)
	reporter.SetUrgentWriter(writeUrgent)
	reporter.Watch(sched)

	dog, err = core.NewSmartdog(rt, wdt, newTimer2(), SmartdogTiming, SmartdogTimeout,
		reporter.DeathHandler(SmartdogTimeout))
	if err != nil {
		halt(err)
	}

	eeprom = core.NewEEPROM(rt, eepromHAL{})
	countBoot()

	blink = rt.Register("blink", toggleLED)
	sched.RunIn(core.Command{Handle: blink}, BlinkTicks)

	rt.AddPoller(func() { sched.Invoke() })
	rt.AddPoller(pumpUART)
	rt.AddPoller(dog.Reset)

	dog.On()
	rt.Debugln("boot " + BoardName)
	rt.Run()
}

func toggleLED(uint16) {
	ledOn = !ledOn
	machine.LED.Set(ledOn)
	sched.RunIn(core.Command{Handle: blink}, BlinkTicks)
}

func countBoot() {
	n, err := eeprom.Read(bootCountAddr, 2)
	if err != nil {
		return
	}
	_ = eeprom.Update(bootCountAddr, n+1, 2, reporter.EEPROMDone())
}

// halt reports a start-up failure and keeps the UART alive until reset
func halt(err error) {
	rt.SetDebugEnabled(true)
	rt.Debugln(err.Error())
	for {
		pumpUART()
	}
}
