package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

int
espeak_say(const char *text, const char *lang)
{
	if (!text)
	{ return -1; }

	espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);
	espeak_VOICE specs;
	memset(&specs, 0, sizeof(specs));
	specs.languages = lang;
	espeak_SetVoiceByProperties(&specs);

	espeak_Synth(text, strlen(text) + 1, 0, 0, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Speak voices the text through espeak-ng, blocking until playback ends.
func Speak(text, lang string) error {
	if text == "" {
		return nil
	}
	if lang == "" || lang == "auto" {
		lang = "en"
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(lang)
	defer C.free(unsafe.Pointer(clang))

	rc := C.espeak_say(ctext, clang)
	if rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
	return nil
}
