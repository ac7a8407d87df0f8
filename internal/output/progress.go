package output

import (
	"strconv"
	"strings"
)

const progressWidth = 20

// ProgressBar is a forward-only bar of 20 dots, one per 5%, for sinks that
// cannot rewrite characters already sent:
//
//	[....................]:max
//	[....................]:100%
type ProgressBar struct {
	out     Writer
	max     int
	pos     int
	printed int
}

func NewProgressBar(out Writer, max int) *ProgressBar {
	return &ProgressBar{out: out, max: max}
}

func (p *ProgressBar) Start() {
	p.out.Writeln("[" + strings.Repeat(".", progressWidth) + "]:" + strconv.Itoa(p.max))
	p.out.Write("[")
}

func (p *ProgressBar) Advance() {
	if p.max <= 0 {
		return
	}
	p.pos++

	percent := p.pos * 100 / p.max
	step := 1
	if p.max <= 100 {
		step = max(progressWidth/p.max, 1)
	}
	if percent > p.printed*(100/progressWidth) && p.printed < progressWidth {
		step = min(step, progressWidth-p.printed)
		p.out.Write(strings.Repeat(".", step))
		p.printed += step
	}
}

func (p *ProgressBar) Finish() {
	if p.printed < progressWidth {
		p.out.Write(strings.Repeat(".", progressWidth-p.printed))
		p.printed = progressWidth
	}
	p.out.Writeln("]:100%")
}
