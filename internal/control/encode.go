package control

import "github.com/rotorbridge/rotorbridge/internal/codec"

func codecBuilderU32(tag byte, v uint32) []byte {
	return codec.NewBuilder(tag).U32(v).Bytes()
}

func codecBuilderStopOne(id uint8) []byte {
	return codec.NewBuilder('x').U8(id).Bytes()
}

func codecBuilderStop() []byte {
	return codec.NewBuilder('x').Bytes()
}

func codecBuilderStart(id uint8) []byte {
	return codec.NewBuilder('g').U8(id).Bytes()
}

func codecBuilderPID(id uint8, kp, ki, kd, f float64) []byte {
	return codec.NewBuilder('%').
		U8(id).
		U16(gainToU16(kp)).
		U16(gainToU16(ki)).
		U16(gainToU16(kd)).
		U16(gainToU16(f)).
		Bytes()
}

func codecBuilderArray(tag byte, values []int16) []byte {
	return codec.NewBuilder(tag).Array16(values).Bytes()
}
