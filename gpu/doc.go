// Package gpu remaps frames on the GPU through wgpu-hal, mirroring the
// CPU engine's semantics: the same parameter buffer, the same polyphase
// coefficient bank, and the same edge policies.
//
// The package holds one process-wide GPU device behind [Initialize];
// engines created with [NewEngine] share it. Host applications that
// already own a device can hand it in through [UseSharedDevice] instead.
package gpu
