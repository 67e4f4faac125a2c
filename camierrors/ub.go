package camierrors

// UB codes, numbered exactly as the reference implementation's `enum class
// UB` (gaps are behaviors that exist in the source numbering but have no
// detector in this core: data races, atomics, restrict, VLAs — all
// Non-goals of spec §1).
const (
	UBDataRace                   UBCode = 5
	UBReferDeletedObject         UBCode = 9
	UBUsePtrValueRefDeletedObj   UBCode = 10
	UBReadIndeterminateRepr      UBCode = 11
	UBReadNonValueRepr           UBCode = 12
	UBStoreNonValueRepr          UBCode = 13
	UBCastToOrFromInteger        UBCode = 16
	UBRealFloatDemotion          UBCode = 17
	UBEvalInvalidLvalue          UBCode = 18
	UBReadBeforeInit             UBCode = 20
	UBUnalignedPtrCast           UBCode = 24
	UBIncompatibleFuncCall       UBCode = 25
	UBModifyStringLiteral        UBCode = 32
	UBUnsequencedAccess          UBCode = 34
	UBExceptionalCondition       UBCode = 35
	UBIncompatibleRead           UBCode = 36
	UBAccessMemberOfAtomic       UBCode = 38
	UBDerefInvalidPtr            UBCode = 39
	UBDivOrModZero               UBCode = 41
	UBDivNotRepresentable        UBCode = 42
	UBPtrAdditionOOB             UBCode = 43
	UBDerefEndingPtr             UBCode = 44
	UBInvalidPtrSubtraction      UBCode = 45
	UBIndexOOB                   UBCode = 46
	UBInvalidRHSOfShift          UBCode = 48
	UBInvalidResultOfLeftShift   UBCode = 49
	UBInvalidPtrCompare          UBCode = 50
	UBOverlapObjAssign           UBCode = 51
	UBModifyConstObj             UBCode = 61
	UBInvalidReadVolatileObj     UBCode = 62
	UBInvalidModifyRestrictObj   UBCode = 65
	UBInvalidRestrictPtrAssign   UBCode = 66
	UBNonpositiveLenOfVLA        UBCode = 72
	UBReturnUndefined            UBCode = 85
)

var ubNames = map[UBCode]string{
	UBDataRace:                 "data_race",
	UBReferDeletedObject:       "refer_del_obj",
	UBUsePtrValueRefDeletedObj: "use_ptr_value_which_ref_del_obj",
	UBReadIndeterminateRepr:    "read_ir_obj",
	UBReadNonValueRepr:         "read_nvr",
	UBStoreNonValueRepr:        "store_nvr",
	UBCastToOrFromInteger:      "cast_to_or_from_integer",
	UBRealFloatDemotion:        "real_float_demotion",
	UBEvalInvalidLvalue:        "eva_ivd_lvalue",
	UBReadBeforeInit:           "read_before_init",
	UBUnalignedPtrCast:         "unaligned_ptr_cast",
	UBIncompatibleFuncCall:     "incompatible_func_call",
	UBModifyStringLiteral:      "modify_string_literal",
	UBUnsequencedAccess:        "unsequenced_access",
	UBExceptionalCondition:     "exceptional_condition",
	UBIncompatibleRead:         "incompatible_read",
	UBAccessMemberOfAtomic:     "access_member_of_atomic",
	UBDerefInvalidPtr:          "deref_ivd_ptr",
	UBDivOrModZero:             "div_or_mod_zero",
	UBDivNotRepresentable:      "div_not_representable",
	UBPtrAdditionOOB:           "ptr_addition_oob",
	UBDerefEndingPtr:           "deref_ending_ptr",
	UBInvalidPtrSubtraction:    "ivd_ptr_subtraction",
	UBIndexOOB:                 "idx_oob",
	UBInvalidRHSOfShift:        "ivd_rhs_of_shift",
	UBInvalidResultOfLeftShift: "ivd_result_of_left_shit",
	UBInvalidPtrCompare:        "ivd_ptr_compare",
	UBOverlapObjAssign:         "overlap_obj_assign",
	UBModifyConstObj:           "modify_const_obj",
	UBInvalidReadVolatileObj:   "ivd_read_volatile_obj",
	UBInvalidModifyRestrictObj: "ivd_modify_restrict_obj",
	UBInvalidRestrictPtrAssign: "ivd_restrict_ptr_assign",
	UBNonpositiveLenOfVLA:      "nonpositive_len_of_vla",
	UBReturnUndefined:          "return_undefined",
}

func ubName(code UBCode) string {
	if name, ok := ubNames[code]; ok {
		return name
	}
	return "unknown_ub"
}

// UBName returns the canonical name of a UB code, or "unknown_ub".
func UBName(code UBCode) string {
	return ubName(code)
}
