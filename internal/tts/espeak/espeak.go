// Package espeak is the espeak-ng speech engine.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
jarvis_say(const char *text, const char *voice, int rate)
{
	if (!text || !voice)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE specs = { 0 };
	specs.languages = voice;
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ espeak_Terminate(); return -3; }
	espeak_SetParameter(espeakRATE, rate, 0);

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_UTF8, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

const (
	DefaultVoice = "pt-br"
	DefaultRate  = 165
)

type Engine struct {
	voice string
	rate  int

	mu sync.Mutex
}

func New(voice string, rate int) *Engine {
	if voice == "" {
		voice = DefaultVoice
	}
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Engine{voice: voice, rate: rate}
}

// Speak blocks until espeak finished playing text. ctx is only checked
// before starting; espeak cannot be interrupted mid-sentence.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(e.voice)
	defer C.free(unsafe.Pointer(cvoice))

	if rc := C.jarvis_say(ctext, cvoice, C.int(e.rate)); rc != 0 {
		return fmt.Errorf("espeak (voice %s) failed: %d", e.voice, int(rc))
	}
	return nil
}
